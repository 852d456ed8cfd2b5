package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"PickLedger/internal/api"
	"PickLedger/internal/notifier"
	"PickLedger/internal/scheduler"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCmd(load loader) *cobra.Command {
	var runOnStart bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, HTTP API and Telegram bot",
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

			// Polling and the startup refresh must return before the store closes.
			var bg background
			defer bg.Wait()
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			var n notifier.Notifier = notifier.Noop{}
			var tn *notifier.TelegramNotifier
			if cfg.TelegramEnabled() {
				tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
				n = tn
			}

			sched := scheduler.NewScheduler(ctx, a.loc, a.store, a.refresher, a.autoCloser, a.calculator, n)
			if err := sched.RegisterAll(cfg.Schedule.RefreshCrons, cfg.Schedule.AutoCloseCron); err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()

			if tn != nil {
				bg.Go(func() { tn.StartPolling(ctx, sched.HandleCommand) })
			}
			if runOnStart {
				bg.Go(func() {
					if _, err := sched.RunRefreshNow(ctx); err != nil {
						log.Error().Err(err).Msg("refresh on start")
					}
				})
			}

			srv := api.NewServer(cfg.HTTP.Addr, api.Deps{
				Store:      a.store,
				Recorder:   a.recorder,
				Calculator: a.calculator,
				Closer:     a.closer,
				Stops:      a.stops,
				AutoCloser: a.autoCloser,
				Cycles:     sched,
			})
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			log.Info().Msg("pickledger is running. Press Ctrl+C to stop.")
			select {
			case <-ctx.Done():
				log.Info().Msg("shutdown signal received, stopping")
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "run one refresh cycle immediately")
	return cmd
}
