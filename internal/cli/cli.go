// Package cli команды teleguardctl: создание администратора, миграции и ручная сверка.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/magabrotheeeer/teleguard/internal/cache"
	"github.com/magabrotheeeer/teleguard/internal/config"
	"github.com/magabrotheeeer/teleguard/internal/gateway"
	"github.com/magabrotheeeer/teleguard/internal/gateway/provider"
	"github.com/magabrotheeeer/teleguard/internal/lib/clock"
	"github.com/magabrotheeeer/teleguard/internal/lib/jwt"
	"github.com/magabrotheeeer/teleguard/internal/lib/logger"
	"github.com/magabrotheeeer/teleguard/internal/lib/sl"
	"github.com/magabrotheeeer/teleguard/internal/migrations"
	authservice "github.com/magabrotheeeer/teleguard/internal/services/auth"
	notification "github.com/magabrotheeeer/teleguard/internal/services/notification"
	reactivation "github.com/magabrotheeeer/teleguard/internal/services/reactivation"
	scheduler "github.com/magabrotheeeer/teleguard/internal/services/scheduler"
	"github.com/magabrotheeeer/teleguard/internal/storage/repository"
)

// PasswordEnv переменная окружения с паролем, если --password не передан
const PasswordEnv = "TELEGUARD_ADMIN_PASSWORD"

type options struct {
	configPath string
}

// NewRootCommand собирает дерево команд
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "teleguardctl",
		Short:         "Administration tool for the TeleGuard subscription engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("CONFIG_PATH"), "path to config file (defaults to $CONFIG_PATH)")

	root.AddCommand(newAdminCommand(opts))
	root.AddCommand(newMigrateCommand(opts))
	root.AddCommand(newSweepCommand(opts))
	return root
}

func (o *options) load() (*config.Config, error) {
	if o.configPath == "" {
		return nil, errors.New("config path is empty: pass --config or set CONFIG_PATH")
	}
	return config.Load(o.configPath)
}

func openStorage(cfg *config.Config) (*repository.Storage, error) {
	return repository.New(cfg.StorageConnectionString)
}

func newAdminCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage panel administrators",
	}

	var username, password string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an administrator account",
		Example: `  teleguardctl admin create --username root --password 's3cret-pass'
  TELEGUARD_ADMIN_PASSWORD='s3cret-pass' teleguardctl admin create --username root`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv(PasswordEnv)
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			st, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			auth := authservice.NewAuthService(st, jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL), "")
			return createAdmin(cmd.Context(), auth, cmd.OutOrStdout(), username, password)
		},
	}
	create.Flags().StringVarP(&username, "username", "u", "", "administrator login")
	create.Flags().StringVarP(&password, "password", "p", "", "administrator password (or $"+PasswordEnv+")")
	_ = create.MarkFlagRequired("username")

	cmd.AddCommand(create)
	return cmd
}

// AdminCreator создание администратора
type AdminCreator interface {
	CreateAdmin(ctx context.Context, username, rawPassword string) (int64, error)
}

func createAdmin(ctx context.Context, creator AdminCreator, out io.Writer, username, password string) error {
	if password == "" {
		return fmt.Errorf("password is empty: pass --password or set %s", PasswordEnv)
	}
	id, err := creator.CreateAdmin(ctx, username, password)
	if err != nil {
		return fmt.Errorf("create admin %q: %w", username, err)
	}
	_, err = fmt.Fprintf(out, "admin %q created (id %d)\n", username, id)
	return err
}

func newMigrateCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStorage(opts, func(cfg *config.Config, st *repository.Storage) error {
				if err := migrations.Run(st.DB.DB, cfg.MigrationsPath); err != nil {
					return err
				}
				return printVersion(cmd.OutOrStdout(), cfg, st)
			})
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be positive, got %d", steps)
			}
			return withStorage(opts, func(cfg *config.Config, st *repository.Storage) error {
				if err := migrations.Down(st.DB.DB, cfg.MigrationsPath, steps); err != nil {
					return err
				}
				return printVersion(cmd.OutOrStdout(), cfg, st)
			})
		},
	}
	down.Flags().IntVarP(&steps, "steps", "n", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStorage(opts, func(cfg *config.Config, st *repository.Storage) error {
				return printVersion(cmd.OutOrStdout(), cfg, st)
			})
		},
	})
	return cmd
}

func withStorage(opts *options, fn func(*config.Config, *repository.Storage) error) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	st, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(cfg, st)
}

func printVersion(out io.Writer, cfg *config.Config, st *repository.Storage) error {
	version, dirty, err := migrations.Version(st.DB.DB, cfg.MigrationsPath)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "schema version %d (dirty: %t)\n", version, dirty)
	return err
}

func newSweepCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one reconciliation pass now and print the report",
		Long: `Runs both passes once: removes expired members from the group and sends reminders.
Uses the gateway from the config; without it every expired subscriber is retained.
With Redis configured the sweep takes the shared lock and clears cached subscribers it changes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			log := logger.New(cfg.Env, cmd.ErrOrStderr())

			st, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			handle := gateway.NewHandle()
			if err := provider.Init(cmd.Context(), handle, cfg.Gateway, log, nil, nil); err != nil {
				log.Warn("running sweep without gateway", sl.Err(err))
			}

			svc := scheduler.NewSchedulerService(st, handle, notification.NewNotifier(handle, log), clock.System{}, log, scheduler.Options{
				LockTTL: cfg.Scheduler.LockTTL,
			}).WithRouter(reactivation.NewDeliverer(handle, log, nil))
			if cfg.AddressRedis != "" {
				c, err := cache.InitServer(cmd.Context(), cfg.RedisConnection)
				if err != nil {
					return err
				}
				defer c.Close()
				svc.WithLocker(c).WithCache(c)
			}
			return sweep(cmd.Context(), svc, cmd.OutOrStdout())
		},
	}
}

// Sweeper один прогон сверки
type Sweeper interface {
	RunOnce(ctx context.Context) (*scheduler.Report, error)
}

func sweep(ctx context.Context, s Sweeper, out io.Writer) error {
	rep, err := s.RunOnce(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
