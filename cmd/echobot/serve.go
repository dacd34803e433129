package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"echobot/internal/bot"
	"echobot/internal/channel"
	"echobot/internal/config"
	"echobot/internal/domain"
	"echobot/internal/journal"
	"echobot/internal/poe"
	"echobot/internal/provider"
)

func serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the bots over HTTP (and Telegram, if enabled)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			closer, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "override server.port")
	return cmd
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// buildBots wires providers and chained-bot clients into the echo bot and,
// when enabled, the stego bot.
func buildBots(cfg *config.Config) (echo *bot.Echo, stego *bot.Stego) {
	fetcher := provider.NewFetcher(provider.SharedHTTPClient(seconds(cfg.Poe.TimeoutSeconds)), logger)

	echo = bot.NewEcho(bot.EchoConfig{
		Bots: bot.EchoBots{
			Default:  cfg.Bots.Default,
			Rewriter: cfg.Bots.Rewriter,
			Executor: cfg.Bots.Executor,
			Mojo:     cfg.Bots.Mojo,
		},
		Caller: poe.NewClient(poe.ClientConfig{
			APIBase:      cfg.Poe.APIBase,
			AccessKeyEnv: cfg.Server.AccessKeyEnv,
			Timeout:      seconds(cfg.Poe.TimeoutSeconds),
			Logger:       logger,
		}),
		Stability: provider.NewStability(provider.StabilityConfig{
			APIBase:   cfg.Providers.Stability.APIBase,
			APIKeyEnv: cfg.Providers.Stability.APIKeyEnv,
			Timeout:   seconds(cfg.Providers.Stability.TimeoutSeconds),
			Logger:    logger,
		}),
		Fireworks: provider.NewFireworks(provider.FireworksConfig{
			APIBase:   cfg.Providers.Fireworks.APIBase,
			Model:     cfg.Providers.Fireworks.Model,
			APIKeyEnv: cfg.Providers.Fireworks.APIKeyEnv,
			Timeout:   seconds(cfg.Providers.Fireworks.TimeoutSeconds),
			Logger:    logger,
		}),
		Fetcher: fetcher,
		Logger:  logger,
	})

	if cfg.Server.StegoEnabled {
		stego = bot.NewStego(bot.StegoConfig{
			DefaultBot: cfg.Bots.Default,
			Caller: poe.NewClient(poe.ClientConfig{
				APIBase:      cfg.Poe.APIBase,
				AccessKeyEnv: cfg.Server.StegoAccessKeyEnv,
				Timeout:      seconds(cfg.Poe.TimeoutSeconds),
				Logger:       logger,
			}),
			Fetcher: fetcher,
			Logger:  logger,
		})
	}
	return echo, stego
}

func serve(ctx context.Context, cfg *config.Config) error {
	echoKey, err := provider.Credential(cfg.Server.AccessKeyEnv)
	if err != nil {
		return fmt.Errorf("echo bot access key: %w", err)
	}

	echo, stego := buildBots(cfg)
	routes := []poe.Route{{Path: cfg.Server.EchoPath, Bot: echo, AccessKey: echoKey}}
	if stego != nil {
		stegoKey, err := provider.Credential(cfg.Server.StegoAccessKeyEnv)
		if err != nil {
			return fmt.Errorf("stego bot access key: %w", err)
		}
		routes = append(routes, poe.Route{Path: cfg.Server.StegoPath, Bot: stego, AccessKey: stegoKey})
	}

	var store *journal.Store
	if cfg.Journal.Enabled {
		store, err = journal.Open(config.ExpandPath(cfg.Journal.DBPath), logger)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	srvCfg := poe.ServerConfig{
		Host:     cfg.Server.Host,
		Port:     cfg.Server.Port,
		Routes:   routes,
		Uploader: poe.NewUploader(cfg.Poe.AttachmentURL, seconds(cfg.Poe.TimeoutSeconds), logger),
		Logger:   logger,
	}
	if store != nil {
		srvCfg.Journal = store
	}
	if cfg.Metrics.Enabled {
		srvCfg.MetricsEndpoint = cfg.Metrics.Endpoint
	}
	srv, err := poe.NewServer(srvCfg)
	if err != nil {
		return err
	}

	var telegram *channel.Telegram
	if tg := cfg.Channels.Telegram; tg.Enabled {
		var target domain.Bot = echo
		if tg.Bot == "stego" {
			if stego == nil {
				return fmt.Errorf("telegram channel wants the stego bot but server.stegoEnabled is false")
			}
			target = stego
		}
		key, err := provider.Credential(tg.AccessKeyEnv)
		if err != nil {
			logger.Warn("telegram channel has no platform key, chained bot calls will fail", "env", tg.AccessKeyEnv)
		}
		tgCfg := channel.TelegramConfig{
			Token:         tg.Token,
			AllowFrom:     tg.AllowFrom,
			Bot:           target,
			AccessKey:     key,
			Logger:        logger,
			MaxConcurrent: cfg.General.MaxConcurrentMessages,
		}
		if store != nil {
			tgCfg.Journal = store
		}
		telegram = channel.NewTelegram(tgCfg)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(ctx) })

	if telegram != nil {
		g.Go(func() error { return telegram.Start(ctx) })
	}

	return g.Wait()
}
