package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cloudvault-backend/internal/billing"
	"cloudvault-backend/internal/shared/config"
	"cloudvault-backend/internal/shared/storage/db"
)

// env is what subcommands operate on.
type env struct {
	DB         *sql.DB
	Repo       billing.Repo
	Reconciler *billing.Reconciler
}

func (e *env) Close() error {
	if e.DB != nil {
		return e.DB.Close()
	}
	return nil
}

type envOpener func(ctx context.Context) (*env, error)

func openEnv(ctx context.Context) (*env, error) {
	cfg := config.Load()
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultMigrateOptions()))
	if err != nil {
		return nil, err
	}
	plans, err := billing.PlanPriceTableFromConfig(cfg.StripePrices)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	repo := &billing.PGRepo{DB: sqlDB}
	return &env{
		DB:         sqlDB,
		Repo:       repo,
		Reconciler: billing.NewReconciler(repo, plans, cfg.BillingTimeout),
	}, nil
}

func newRootCmd(open envOpener) *cobra.Command {
	root := &cobra.Command{
		Use:           "vaultctl",
		Short:         "Operator tooling for the file vault backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSubscriptionCmd(open), newMigrateCmd(open))
	return root
}

func newSubscriptionCmd(open envOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscription",
		Short: "Inspect and override stored subscriptions",
	}
	cmd.AddCommand(newShowCmd(open), newProvisionCmd(open), newOverrideCmd(open))
	return cmd
}

func newShowCmd(open envOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "show <userId>",
		Short: "Print a user's subscription record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, open, func(ctx context.Context, e *env) error {
				rec, err := e.Repo.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printRecord(cmd.OutOrStdout(), rec)
			})
		},
	}
}

func newProvisionCmd(open envOpener) *cobra.Command {
	var (
		plan, status, periodEnd string
		trialDays               int
	)
	cmd := &cobra.Command{
		Use:   "provision <userId>",
		Short: "Create or replace a subscription without the billing provider",
		Example: `  vaultctl subscription provision google:123 --plan pro
  vaultctl subscription provision google:123 --plan basic --trial-days 14`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			planID, err := billing.ParsePlan(plan)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			rec := billing.SubscriptionRecord{
				UserID:             args[0],
				PlanID:             planID,
				Status:             billing.Status(status),
				CurrentPeriodStart: now,
				CurrentPeriodEnd:   now.AddDate(0, 1, 0),
			}
			if periodEnd != "" {
				end, err := time.Parse(time.RFC3339, periodEnd)
				if err != nil {
					return fmt.Errorf("--period-end: %w", err)
				}
				rec.CurrentPeriodEnd = end.UTC()
			}
			if trialDays > 0 {
				trialEnd := now.AddDate(0, 0, trialDays)
				rec.Status = billing.StatusTrialing
				rec.IsTrial = true
				rec.TrialStart = &now
				rec.TrialEnd = &trialEnd
			}
			return withEnv(cmd, open, func(ctx context.Context, e *env) error {
				out, err := e.Reconciler.Provision(ctx, rec)
				if err != nil {
					return err
				}
				return printRecord(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().StringVar(&plan, "plan", "", "plan id (basic, pro, enterprise)")
	cmd.Flags().StringVar(&status, "status", string(billing.StatusActive), "subscription status")
	cmd.Flags().StringVar(&periodEnd, "period-end", "", "current period end (RFC3339), default one month from now")
	cmd.Flags().IntVar(&trialDays, "trial-days", 0, "start a trial of this many days")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

func newOverrideCmd(open envOpener) *cobra.Command {
	var (
		plan, status, periodEnd string
		cancelAtPeriodEnd       bool
	)
	cmd := &cobra.Command{
		Use:   "override <userId>",
		Short: "Change selected fields of an existing subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var o billing.Override
			if cmd.Flags().Changed("plan") {
				p := billing.PlanID(plan)
				o.PlanID = &p
			}
			if cmd.Flags().Changed("status") {
				s := billing.Status(status)
				o.Status = &s
			}
			if cmd.Flags().Changed("cancel-at-period-end") {
				o.CancelAtPeriodEnd = &cancelAtPeriodEnd
			}
			if cmd.Flags().Changed("period-end") {
				end, err := time.Parse(time.RFC3339, periodEnd)
				if err != nil {
					return fmt.Errorf("--period-end: %w", err)
				}
				o.CurrentPeriodEnd = &end
			}
			if o == (billing.Override{}) {
				return errors.New("nothing to override")
			}
			return withEnv(cmd, open, func(ctx context.Context, e *env) error {
				out, err := e.Reconciler.ApplyOverride(ctx, args[0], o)
				if err != nil {
					return err
				}
				return printRecord(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().StringVar(&plan, "plan", "", "plan id")
	cmd.Flags().StringVar(&status, "status", "", "subscription status")
	cmd.Flags().StringVar(&periodEnd, "period-end", "", "current period end (RFC3339)")
	cmd.Flags().BoolVar(&cancelAtPeriodEnd, "cancel-at-period-end", false, "cancel when the current period ends")
	return cmd
}

func newMigrateCmd(open envOpener) *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply (or roll back one) database migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, open, func(ctx context.Context, e *env) error {
				if e.DB == nil {
					return errors.New("migrate needs a database")
				}
				if down {
					if err := db.RollbackMigration(ctx, e.DB); err != nil {
						return err
					}
				} else if err := db.RunMigrations(ctx, e.DB); err != nil {
					return err
				}
				v, err := db.MigrationVersion(ctx, e.DB)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back the latest migration")
	return cmd
}

func withEnv(cmd *cobra.Command, open envOpener, fn func(context.Context, *env) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	e, err := open(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(ctx, e)
}

func printRecord(w io.Writer, rec billing.SubscriptionRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}
