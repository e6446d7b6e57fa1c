package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/config"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/db"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/http/middleware"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/jobs"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/logging"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "kiosksync",
		Short:         "Kiosk content scheduling and version sync server",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newTokenCommand())
	cmd.AddCommand(newPruneCommand())
	return cmd
}

// loadConfig reads configuration and sets up logging; every command that touches the
// database starts here.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

func newServeCommand() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := db.Init(cfg.DatabaseURL); err != nil {
				return err
			}
			if migrate {
				if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
					return fmt.Errorf("db migrate: %w", err)
				}
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending migrations before serving")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := db.Init(cfg.DatabaseURL); err != nil {
				return err
			}
			return db.RunMigrations(cfg.MigrationsPath)
		},
	}
}

func newPruneCommand() *cobra.Command {
	var retention time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete poll and power log rows past the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := db.Init(cfg.DatabaseURL); err != nil {
				return err
			}
			if retention <= 0 {
				retention = cfg.Jobs.LogRetention
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()
			n, err := jobs.NewJanitor(db.NewStore(db.DB), retention).RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d rows\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&retention, "retention", 0, "override LOG_RETENTION")
	return cmd
}

// newTokenCommand mints a bearer token. It only needs JWT_SECRET, so it does not go
// through config.Load and its database checks.
func newTokenCommand() *cobra.Command {
	var (
		id     model.Identity
		ttl    time.Duration
		secret string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed bearer token for a device or an administrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				_ = godotenv.Load()
				secret = os.Getenv("JWT_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("JWT_SECRET is required")
			}
			if id.Subject == "" || id.TenantID <= 0 {
				return fmt.Errorf("--sub and --tenant are required")
			}

			token, err := middleware.GenerateJWT(id, secret, ttl)
			if err != nil {
				return err
			}
			log.Debug().Str("sub", id.Subject).Str("role", id.Role).Msg("token minted")
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&id.Subject, "sub", "", "subject; the device id for device tokens")
	cmd.Flags().Int64Var(&id.TenantID, "tenant", 0, "tenant id")
	cmd.Flags().StringVar(&id.Role, "role", model.RoleDevice, "admin, content_editor, viewer or device")
	cmd.Flags().DurationVar(&ttl, "ttl", 365*24*time.Hour, "token lifetime")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret, defaults to JWT_SECRET")
	return cmd
}
