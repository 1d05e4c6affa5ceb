package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"dues-backend/internal/audit"
	"dues-backend/internal/demo"
	"dues-backend/internal/ledger"
	"dues-backend/internal/models"
	"dues-backend/internal/reconcile"
	"dues-backend/internal/reminders"

	"github.com/spf13/cobra"
)

var cliActor = audit.System("duesctl")

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()
			fmt.Println("schema is up to date")
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the demo dataset (no-op when demo data exists)",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()
			res, err := demo.NewSeeder(e.db, e.locks).Seed(cmd.Context(), cliActor)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
}

func resetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove all demo data",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("reset deletes every demo entity, pass --yes to confirm")
			}
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()
			res, err := demo.NewSeeder(e.db, e.locks).Reset(cmd.Context(), cliActor)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the reset")
	return cmd
}

func recomputeCmd() *cobra.Command {
	var memberID uint
	var ledgerEvent bool
	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Re-derive paid amounts and statuses from the ledger",
		Long: `Re-derive paid amounts and statuses from the ledger.

Without --member every member is refreshed and manual status overrides
are kept. With --member and --clear-override a single member is
recomputed as if a ledger event happened.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()
			engine := reconcile.NewEngine(e.db, e.locks, e.cfg.Budget)

			if memberID == 0 {
				res, err := engine.RefreshAll(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(res)
			}
			mode := reconcile.Refresh
			if ledgerEvent {
				mode = reconcile.LedgerEvent
			}
			m, err := engine.Recompute(cmd.Context(), memberID, mode)
			if err != nil {
				return err
			}
			fmt.Printf("%s: paid %s of %s, %s\n", m.Name, m.AmountPaid.StringFixed(2), m.DuesAmount.StringFixed(2), m.PaymentStatus)
			return nil
		},
	}
	cmd.Flags().UintVarP(&memberID, "member", "m", 0, "recompute a single member")
	cmd.Flags().BoolVar(&ledgerEvent, "clear-override", false, "drop a manual status override")
	return cmd
}

func statsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print collection statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()
			st, err := reconcile.NewEngine(e.db, e.locks, e.cfg.Budget).ComputeStats(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(reconcile.ToStatsResponse(st))
			}
			fmt.Printf("members:     %d (paid %d, pending %d, overdue %d)\n", st.TotalMembers, st.PaidMembers, st.PendingMembers, st.OverdueMembers)
			fmt.Printf("expected:    %s\n", st.TotalExpected.StringFixed(2))
			fmt.Printf("collected:   %s (%s%%)\n", st.TotalCollected.StringFixed(2), st.CollectionRate.StringFixed(2))
			fmt.Printf("outstanding: %s\n", st.Outstanding.StringFixed(2))
			fmt.Printf("expenses:    %s\n", st.TotalExpenses.StringFixed(2))
			fmt.Printf("net income:  %s\n", st.NetIncome.StringFixed(2))
			fmt.Printf("budget left: %s of %s\n", st.BudgetRemaining.StringFixed(2), st.Budget.StringFixed(2))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output as JSON")
	return cmd
}

func exportCmd() *cobra.Command {
	var out, status string
	var days int
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write transactions to an Excel workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()
			f := ledger.Filter{Status: models.TransactionStatus(status)}
			if days > 0 {
				from := time.Now().AddDate(0, 0, -days)
				f.From = &from
			}
			b, err := ledger.NewService(e.db, e.locks).ExportXLSX(cmd.Context(), f)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, b, 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s (%d bytes)\n", out, len(b))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "transactions.xlsx", "output file")
	cmd.Flags().StringVar(&status, "status", "", "Completed, Pending or Failed")
	cmd.Flags().IntVar(&days, "days", 0, "only the last N days")
	return cmd
}

func remindCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "remind [overdue|pending|summary|deadline]",
		Short:     "Run one scheduled reminder job now",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"overdue", "pending", "summary", "deadline"},
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			schedule, err := reminders.LoadSchedule(e.cfg.ReminderScheduleFile)
			if err != nil {
				return err
			}
			disp := reminders.NewDispatcher(e.db, reminders.NewNotifier(e.cfg.SlackWebhookURL), e.cfg.ReminderWorkers)
			engine := reconcile.NewEngine(e.db, e.locks, e.cfg.Budget)
			s, err := reminders.NewScheduler(e.db, disp, engine, schedule)
			if err != nil {
				return err
			}

			switch args[0] {
			case "overdue":
				return s.RunDailyOverdue(cmd.Context())
			case "pending":
				// the even-week guard only applies to the cron trigger
				_, err := disp.SendSummary(cmd.Context(), "Pending dues reminder", models.PaymentPending)
				return err
			case "summary":
				return s.RunWeeklySummary(cmd.Context())
			case "deadline":
				return s.RunDeadlineCheck(cmd.Context())
			}
			return fmt.Errorf("unknown job %q", args[0])
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
