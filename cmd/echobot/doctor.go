package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"echobot/internal/config"
	"echobot/internal/journal"
	"echobot/internal/provider"
)

type doctorReport struct {
	passed, warned, failed int
}

func (r *doctorReport) pass(check, detail string) {
	fmt.Printf("  [PASS] %-22s %s\n", check, detail)
	r.passed++
}

func (r *doctorReport) fail(check, detail string) {
	fmt.Printf("  [FAIL] %-22s %s\n", check, detail)
	r.failed++
}

func (r *doctorReport) warn(check, detail string) {
	fmt.Printf("  [WARN] %-22s %s\n", check, detail)
	r.warned++
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your echobot setup",
		Long: `Verifies the configuration, access keys, provider credentials, journal
database and listen port. Reports pass/warn/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.ExpandPath(resolveConfigPath())
			fmt.Printf("echobot doctor v%s\n\n", version)

			var r doctorReport

			cfg, err := config.Load(cfgPath)
			switch {
			case errors.Is(err, fs.ErrNotExist):
				r.warn("Config file", fmt.Sprintf("not found at %s, using defaults", cfgPath))
				cfg = config.Defaults()
				cfg.Journal.DBPath = config.ExpandPath(cfg.Journal.DBPath)
			case err != nil:
				r.fail("Config", err.Error())
				return summarize(&r)
			default:
				r.pass("Config", cfgPath)
			}
			if err := loadEnvFile(cfg.General.EnvFile); err != nil {
				r.fail("Env file", err.Error())
			}

			checkCredential(&r, "Echo access key", cfg.Server.AccessKeyEnv, true)
			if cfg.Server.StegoEnabled {
				checkCredential(&r, "Stego access key", cfg.Server.StegoAccessKeyEnv, true)
			}
			checkCredential(&r, "Stability API key", cfg.Providers.Stability.APIKeyEnv, false)
			checkCredential(&r, "Fireworks API key", cfg.Providers.Fireworks.APIKeyEnv, false)

			if tg := cfg.Channels.Telegram; tg.Enabled {
				if tg.Token == "" {
					r.fail("Telegram", "enabled but no token configured")
				} else {
					r.pass("Telegram", fmt.Sprintf("serving the %s bot", tg.Bot))
				}
			}

			if cfg.Journal.Enabled {
				checkJournal(&r, config.ExpandPath(cfg.Journal.DBPath))
			}

			if err := checkPort(cfg.Server.Host, cfg.Server.Port); err != nil {
				r.warn("Server port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
			} else {
				r.pass("Server port", fmt.Sprintf("%s:%d available", cfg.Server.Host, cfg.Server.Port))
			}

			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					r.pass("Log file", cfg.General.LogFile)
				}
			}

			return summarize(&r)
		},
	}
}

func summarize(r *doctorReport) error {
	fmt.Printf("\nResults: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		fmt.Printf("\nPlease fix the failed checks before running echobot.\n")
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	if r.warned > 0 {
		fmt.Printf("\nechobot should work but consider fixing the warnings.\n")
	} else {
		fmt.Printf("\nAll checks passed.\n")
	}
	return nil
}

// checkCredential reports whether env holds a usable secret. Access keys are
// required to serve; provider keys only disable their command when missing.
func checkCredential(r *doctorReport, check, env string, required bool) {
	if _, err := provider.Credential(env); err != nil {
		if required {
			r.fail(check, fmt.Sprintf("$%s is not set", env))
		} else {
			r.warn(check, fmt.Sprintf("$%s is not set", env))
		}
		return
	}
	r.pass(check, "$"+env)
}

func checkJournal(r *doctorReport, dbPath string) {
	store, err := journal.Open(dbPath, logger)
	if err != nil {
		r.fail("Journal", err.Error())
		return
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stats, err := store.Stats(ctx)
	if err != nil {
		r.fail("Journal", err.Error())
		return
	}
	r.pass("Journal", fmt.Sprintf("%s (%d requests, %d fatal, %d reports)", dbPath, stats.Requests, stats.Fatal, stats.Reports))
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return err
	}
	return ln.Close()
}
