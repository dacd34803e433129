package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"echobot/internal/stego"
)

func stegoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stego",
		Short: "Hide or reveal text in local image files",
		Long:  "Runs the same LSB encoder the stego bot uses against files on disk.",
	}

	var out string
	hide := &cobra.Command{
		Use:   "hide [image] [message]",
		Short: "Embed a message and write the result as PNG",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			encoded, err := stego.Hide(data, args[1])
			if err != nil {
				return fmt.Errorf("hide: %w", err)
			}
			if err := os.WriteFile(out, encoded, 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s (%d bytes)\n", out, len(encoded))
			return nil
		},
	}
	hide.Flags().StringVarP(&out, "output", "o", "secret.png", "output PNG path")

	reveal := &cobra.Command{
		Use:   "reveal [image]",
		Short: "Print the message hidden in an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			msg, err := stego.Reveal(data)
			if err != nil {
				return fmt.Errorf("reveal: %w", err)
			}
			fmt.Println(msg)
			return nil
		},
	}

	cmd.AddCommand(hide, reveal)
	return cmd
}
