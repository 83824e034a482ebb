package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"exchange/internal/api"
	"exchange/internal/config"
	"exchange/internal/db"
	"exchange/internal/logging"
	"exchange/internal/middleware"
	"exchange/internal/models"
	"exchange/internal/notify"
	"exchange/internal/rates"
	"exchange/internal/service"
	"exchange/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "exchange",
		Short:         "Crypto exchange admin API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, true)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (defaults to $CONFIG_FILE)")

	root.AddCommand(newServeCmd(&configPath), newMigrateCmd(&configPath), newAdminCmd(&configPath))
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	var autoMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath, autoMigrate)
		},
	}
	cmd.Flags().BoolVar(&autoMigrate, "migrate", true, "apply database migrations before serving")
	return cmd
}

func newMigrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or revert database migrations",
	}
	run := func(down bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.StoreDriver != config.DriverPostgres {
				return fmt.Errorf("migrations need the %s store driver", config.DriverPostgres)
			}
			return db.Migrate(cfg.DSN(), down)
		}
	}
	cmd.AddCommand(
		&cobra.Command{Use: "up", Short: "Apply all migrations", RunE: run(false)},
		&cobra.Command{Use: "down", Short: "Revert all migrations", RunE: run(true)},
	)
	return cmd
}

func newAdminCmd(configPath *string) *cobra.Command {
	var req models.CreateUserRequest

	create := &cobra.Command{
		Use:   "create",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			app, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			user, err := app.svc.CreateAdmin(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %d (%s)\n", user.ID, user.Email)
			return nil
		},
	}
	create.Flags().StringVar(&req.Name, "name", "", "display name")
	create.Flags().StringVar(&req.Email, "email", "", "login email")
	create.Flags().StringVar(&req.Password, "password", "", "login password")
	create.MarkFlagRequired("email")
	create.MarkFlagRequired("password")
	create.MarkFlagRequired("name")

	cmd := &cobra.Command{Use: "admin", Short: "Manage administrator accounts"}
	cmd.AddCommand(create)
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}
	if err := logging.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, fmt.Errorf("error initializing logger: %w", err)
	}
	return cfg, nil
}

func runServe(ctx context.Context, configPath string, autoMigrate bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if autoMigrate && cfg.StoreDriver == config.DriverPostgres {
		if err := db.Migrate(cfg.DSN(), false); err != nil {
			return err
		}
	}

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	limiter.StartCleanup(10*time.Minute, ctx.Done())

	server := api.NewServer(app.svc, app.store, app.tokens, limiter)
	return server.Start(ctx, ":"+cfg.ServerPort)
}

// app holds the wired dependencies shared by the commands.
type app struct {
	store  store.Store
	redis  *redis.Client
	tokens *middleware.TokenIssuer
	svc    *service.Service
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{tokens: middleware.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)}

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		conn, err := db.InitDB(ctx, cfg.DSN())
		if err != nil {
			return nil, err
		}
		a.store = store.NewPostgres(conn)
		logging.Info("Successfully connected to database", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))
	case config.DriverMemory:
		a.store = store.NewMemory()
		logging.Warn("Using in-memory store; data is lost on exit")
	}

	var cache rates.Cache = rates.NopCache{}
	if cfg.RedisAddr != "" {
		rdb, err := rates.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = rdb
		cache = rates.NewRedisCache(rdb)
		logging.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))
	}
	provider := rates.NewClient(cfg.RatesAPIURL, cfg.RatesAPIKey, rates.WithCache(cache, cfg.RatesCacheTTL))

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.SMTPHost != "" {
		notifier = notify.NewMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
	}

	a.svc = service.New(a.store, notifier, provider, a.tokens, cfg.ReferralRewardAmount())
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}
