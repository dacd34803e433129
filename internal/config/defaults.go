package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:              "info",
			MaxConcurrentMessages: 5,
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			EchoPath:          "/",
			StegoEnabled:      false,
			StegoPath:         "/stego",
			AccessKeyEnv:      "POE_ACCESS_KEY",
			StegoAccessKeyEnv: "STEGO_POE_ACCESS_KEY",
		},
		Poe: PoeConfig{
			APIBase:        "https://api.poe.com/bot/",
			AttachmentURL:  "https://www.quora.com/poe_api/file_attachment_3RD_PARTY_POST",
			TimeoutSeconds: 600,
		},
		Bots: BotsConfig{
			Default:  "GPT-3.5-Turbo",
			Rewriter: "ReversePromptGuide",
			Executor: "PoorMansPrompts",
			Mojo:     "Mojo_Infinity",
		},
		Providers: ProvidersConfig{
			Stability: StabilityConfig{
				APIBase:        "https://api.stability.ai/v2beta/stable-image/generate",
				APIKeyEnv:      "STABILITY_API_KEY",
				TimeoutSeconds: 120,
			},
			Fireworks: FireworksConfig{
				APIBase:        "https://api.fireworks.ai/inference/v1/image_generation/accounts/fireworks/models",
				Model:          "stable-diffusion-xl-1024-v1-0",
				APIKeyEnv:      "FIREWORKS_API_KEY",
				TimeoutSeconds: 120,
			},
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{
				Enabled:      false,
				Bot:          "echo",
				AccessKeyEnv: "POE_ACCESS_KEY",
			},
		},
		Journal: JournalConfig{
			Enabled: false,
			DBPath:  "~/.echobot/journal.db",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
	}
}
