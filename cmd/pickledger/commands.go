package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"PickLedger/internal/model"
	"PickLedger/internal/notifier"
	"PickLedger/internal/performance"
	"PickLedger/internal/scheduler"

	"github.com/spf13/cobra"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRefreshCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Run one refresh cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			sched := scheduler.NewScheduler(cmd.Context(), a.loc, a.store, a.refresher, a.autoCloser, a.calculator, nil)
			c, err := sched.RunRefreshNow(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(c)
		},
	}
}

func newSummaryCmd(load loader) *cobra.Command {
	var period, status, category string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print performance statistics for a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := model.ParseWindow(period)
			if err != nil {
				return err
			}
			var f performance.Filter
			if status != "" {
				if f.Status, err = model.ParseStatus(status); err != nil {
					return err
				}
			}
			if category != "" {
				if f.Category, err = model.ParseCategory(category); err != nil {
					return err
				}
			}

			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.calculator.Summary(cmd.Context(), w, f)
			if err != nil {
				return err
			}
			fmt.Print(notifier.FormatSummary(s))
			return nil
		},
	}
	cmd.Flags().StringVar(&period, "period", string(model.DefaultWindow), "7d, 30d, 90d or all")
	cmd.Flags().StringVar(&status, "status", "", "open or closed")
	cmd.Flags().StringVar(&category, "category", "", "shortterm, trend or value")
	return cmd
}

func newCloseCmd(load loader) *cobra.Command {
	var price float64
	var reason string
	cmd := &cobra.Command{
		Use:   "close <id>",
		Short: "Close an open position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[0], err)
			}
			r, err := model.ParseCloseReason(reason)
			if err != nil {
				return err
			}
			var p *float64
			if cmd.Flags().Changed("price") {
				p = &price
			}

			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			e, err := a.closer.Close(cmd.Context(), id, p, r)
			if err != nil {
				return err
			}
			fmt.Printf("closed #%d %s at %.2f (%s), profit %.2f%%\n",
				e.ID, e.Symbol, e.ClosePrice, e.CloseReason, e.ProfitPercent())
			return nil
		},
	}
	cmd.Flags().Float64Var(&price, "price", 0, "close price (default: latest observed price)")
	cmd.Flags().StringVar(&reason, "reason", "", "manual, profit, loss or expired")
	return cmd
}
