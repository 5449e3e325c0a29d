package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/medeasy/medeasy/internal/config"
	"github.com/medeasy/medeasy/internal/platform/db"
	"github.com/medeasy/medeasy/internal/platform/logging"
	"github.com/medeasy/medeasy/migrations"
)

const version = "1.0.0"

func main() {
	rootCmd := &cobra.Command{
		Use:          "medeasy",
		Short:        "MedEasy medical record APIs",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var (
		services []string
		migrate  bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			selected, err := parseServices(services)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if migrate {
				if err := migrateUp(ctx, cfg, selected); err != nil {
					return err
				}
			}
			return run(ctx, cfg, selected)
		},
	}
	cmd.Flags().StringSliceVar(&services, "services", config.Services, "Services to serve")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply pending migrations before serving")
	return cmd
}

func migrateCmd() *cobra.Command {
	var services []string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}
	cmd.PersistentFlags().StringSliceVar(&services, "services", config.Services, "Services whose schema to migrate")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			selected, err := parseServices(services)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return migrateUp(cmd.Context(), cfg, selected)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			selected, err := parseServices(services)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return migrateStatus(cmd.Context(), cfg, selected)
		},
	})
	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// parseServices checks the requested services and keeps the start order.
func parseServices(requested []string) ([]string, error) {
	want := make(map[string]bool, len(requested))
	for _, s := range requested {
		want[s] = true
	}
	var out []string
	for _, s := range config.Services {
		if want[s] {
			out = append(out, s)
			delete(want, s)
		}
	}
	for s := range want {
		return nil, fmt.Errorf("unknown service %q", s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no service selected")
	}
	return out, nil
}

func migrator(ctx context.Context, cfg *config.Config, service string) (*db.Migrator, func(), error) {
	fsys, err := migrations.FS(cfg.MigrationsDir, service)
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, service, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, fsys, service), pool.Close, nil
}

func migrateUp(ctx context.Context, cfg *config.Config, services []string) error {
	logger := logging.New(cfg.LogFormat)
	for _, service := range services {
		m, closeFn, err := migrator(ctx, cfg, service)
		if err != nil {
			return err
		}
		count, err := m.Up(ctx)
		closeFn()
		if err != nil {
			return fmt.Errorf("migrate %s: %w", service, err)
		}
		logger.Info().Str("schema", service).Int("applied", count).Msg("migrations applied")
	}
	return nil
}

func migrateStatus(ctx context.Context, cfg *config.Config, services []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCHEMA\tVERSION\tNAME\tSTATUS\tAPPLIED AT")
	for _, service := range services {
		m, closeFn, err := migrator(ctx, cfg, service)
		if err != nil {
			return err
		}
		statuses, err := m.Status(ctx)
		closeFn()
		if err != nil {
			return fmt.Errorf("migration status of %s: %w", service, err)
		}
		for _, s := range statuses {
			state, at := "pending", ""
			if s.AppliedAt != nil {
				state, at = "applied", s.AppliedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", service, s.Version, s.Name, state, at)
		}
	}
	return w.Flush()
}
