package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/datingchat-server/internal/app"
	"github.com/vovakirdan/datingchat-server/internal/auth"
	"github.com/vovakirdan/datingchat-server/internal/config"
	applog "github.com/vovakirdan/datingchat-server/internal/log"
	"github.com/vovakirdan/datingchat-server/internal/store"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "datingchat",
		Short:         "Real-time messaging and presence server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.yaml")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (console, json)")

	root.AddCommand(newServeCmd(opts), newTokenCmd(opts))
	return root
}

// load resolves config and builds the logger, applying overrides last.
func (o *rootOptions) load(overrides config.Config) (*config.Config, *zerolog.Logger, error) {
	bootstrap := applog.New("info", "console")
	cfg, path, err := config.Load(bootstrap, o.configPath)
	if err != nil {
		return nil, nil, err
	}

	overrides.LogLevel = o.logLevel
	overrides.LogFormat = o.logFormat
	cfg.UpdateFrom(overrides)

	logger := applog.New(cfg.LogLevel, cfg.LogFormat)
	logger.Debug().Str("config", path).Msg("configuration loaded")
	return &cfg, logger, nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var overrides config.Config
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(overrides)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}

			logger.Info().Str("addr", cfg.Addr).Msg("starting datingchat server")
			if err := application.Run(ctx); err != nil {
				return fmt.Errorf("server exited with error: %w", err)
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&overrides.Addr, "addr", "", "HTTP listen address")
	flags.StringVar(&overrides.DBDriver, "db-driver", "", "database driver (sqlite3, postgres)")
	flags.StringVar(&overrides.DBDSN, "db-dsn", "", "database DSN or sqlite path")
	flags.StringVar(&overrides.AMQPURL, "amqp-url", "", "RabbitMQ URL for offline notifications")
	flags.IntVar(&overrides.RateLimitPerMinute, "rate-limit", 0, "messages per minute per session")
	flags.DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	return cmd
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		username string
		knownAs  string
		create   bool
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load(config.Config{JWTTTL: ttl})
			if err != nil {
				return err
			}

			st, err := app.OpenStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			username = strings.ToLower(strings.TrimSpace(username))
			if create {
				_, err := st.GetUserByUsername(ctx, username)
				if errors.Is(err, store.ErrNotFound) {
					if knownAs == "" {
						knownAs = username
					}
					if _, err := st.CreateUser(ctx, username, knownAs); err != nil {
						return fmt.Errorf("create user: %w", err)
					}
				} else if err != nil {
					return fmt.Errorf("get user: %w", err)
				}
			}

			token, err := auth.NewService(st, app.JWTConfig(cfg)).IssueToken(ctx, username)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&username, "user", "", "username to issue the token for")
	flags.StringVar(&knownAs, "known-as", "", "display name when creating the user")
	flags.BoolVar(&create, "create", false, "create the user if it does not exist")
	flags.DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to jwt_ttl)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
