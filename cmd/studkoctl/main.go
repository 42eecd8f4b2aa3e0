package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"studko/config"
	"studko/internal/admin"
	"studko/internal/booking"
	"studko/internal/bot"
	"studko/internal/db"
	"studko/internal/models"
	"studko/internal/notify"
	"studko/internal/payment"
	"studko/pkg/logger"
)

var Version = "dev"

type profileLookup interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
}

// app is what the operator commands act on. The operator bot exposes the
// same surface.
type app struct {
	bookings bot.BookingActions
	reviews  bot.ReviewActions
	profiles profileLookup
	close    func()
}

type backend struct {
	open    func(ctx context.Context) (*app, error)
	migrate func(ctx context.Context) ([]string, error)
}

func main() {
	if err := newRootCmd(postgresBackend()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(b backend) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "studkoctl",
		Short:         "Študko operator tool",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Every operator command acts on behalf of an admin profile
	var operatorFlag string
	rootCmd.PersistentFlags().StringVar(&operatorFlag, "operator", "", "operator user id (must be an admin profile)")

	// Register subcommands
	rootCmd.AddCommand(migrateCmd(b))
	rootCmd.AddCommand(bookingCmd(b, &operatorFlag))
	rootCmd.AddCommand(reviewCmd(b, &operatorFlag, "tutor", "Review tutor applications"))
	rootCmd.AddCommand(reviewCmd(b, &operatorFlag, "claim", "Review social media claims"))

	return rootCmd
}

func migrateCmd(b backend) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			applied, err := b.migrate(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(applied) == 0 {
				fmt.Fprintln(out, "Database is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(out, "applied %s\n", name)
			}
			return nil
		},
	}
}

// withOperator opens the backend and checks that --operator names an admin.
func withOperator(cmd *cobra.Command, b backend, operatorFlag string, run func(a *app, actor booking.Actor, out io.Writer) error) error {
	if operatorFlag == "" {
		return fmt.Errorf("--operator is required")
	}
	operatorID, err := uuid.Parse(operatorFlag)
	if err != nil {
		return fmt.Errorf("invalid --operator: %w", err)
	}

	// Open the backend and verify the operator
	a, err := b.open(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	profile, err := a.profiles.GetProfile(cmd.Context(), operatorID)
	if err != nil {
		return fmt.Errorf("load operator profile: %w", err)
	}
	if !profile.IsAdmin {
		return fmt.Errorf("user %s is not an admin", operatorID)
	}

	return run(a, booking.Actor{UserID: operatorID, Operator: true}, cmd.OutOrStdout())
}

func postgresBackend() backend {
	load := func() (*config.Config, *logger.Logger, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		return cfg, logger.NewDevelopment(), nil
	}

	return backend{
		migrate: func(ctx context.Context) ([]string, error) {
			cfg, _, err := load()
			if err != nil {
				return nil, err
			}
			database, err := db.NewPostgresDB(cfg.DB)
			if err != nil {
				return nil, err
			}
			defer database.Close()
			return database.Migrate(ctx)
		},
		open: func(_ context.Context) (*app, error) {
			cfg, l, err := load()
			if err != nil {
				return nil, err
			}

			// Resolve the calendar timezone
			loc, err := time.LoadLocation(cfg.Calendar.Timezone)
			if err != nil {
				return nil, fmt.Errorf("invalid calendar timezone: %w", err)
			}

			// Initialize database connection
			database, err := db.NewPostgresDB(cfg.DB)
			if err != nil {
				return nil, err
			}

			// Operator alerts are skipped: the CLI is the operator.
			notifier := notify.NewNotifier(database, notify.NewMailer(cfg.Email), notify.NewDiscord(cfg.Discord.WebhookURL), l.Named("notify"))
			stripeClient := payment.NewStripeClient(cfg.Stripe, cfg.Server.PublicSiteURL)

			return &app{
				bookings: booking.NewService(database, stripeClient, notifier, loc, l.Named("booking")),
				reviews:  admin.NewService(database, notifier, l.Named("admin")),
				profiles: database,
				close: func() {
					database.Close()
					_ = l.Sync()
				},
			}, nil
		},
	}
}
