package main

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// daemonConfig holds settings that belong to the process, not the engine.
type daemonConfig struct {
	ListenAddr     string
	DatabasePath   string
	RedisAddr      string
	SessionBackend string
	CORSOrigins    []string
	LoginURL       string
	LogLevel       string
	LogFormat      string
}

func loadDaemonConfig(v *viper.Viper) daemonConfig {
	v.AutomaticEnv()
	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("DATABASE_PATH", "data/gatekeeper.db")
	v.SetDefault("SESSION_BACKEND", "redis")
	v.SetDefault("LOGIN_URL", "/login")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	var origins []string
	for _, o := range strings.Split(v.GetString("CORS_ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return daemonConfig{
		ListenAddr:     v.GetString("LISTEN_ADDR"),
		DatabasePath:   v.GetString("DATABASE_PATH"),
		RedisAddr:      v.GetString("REDIS_ADDR"),
		SessionBackend: strings.ToLower(v.GetString("SESSION_BACKEND")),
		CORSOrigins:    origins,
		LoginURL:       v.GetString("LOGIN_URL"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		LogFormat:      v.GetString("LOG_FORMAT"),
	}
}

func newLogger(cfg daemonConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func newRootCommand() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:           "authd",
		Short:         "Session authentication and authorization service",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile == "" {
				return nil
			}
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(
		newServeCommand(),
		newSweepCommand(),
		newUserCommand(),
		newHashCommand(),
	)
	return cmd
}
