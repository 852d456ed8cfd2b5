package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"PickLedger/internal/ledger"
	"PickLedger/internal/model"
	"PickLedger/internal/notifier"
	"PickLedger/internal/performance"
	"PickLedger/internal/refresher"
	"PickLedger/internal/strategy"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Cycle is the outcome of one refresh followed by an exit-rule sweep.
type Cycle struct {
	Refresh refresher.Result     `json:"refresh"`
	Sweep   strategy.SweepResult `json:"auto_close"`
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron       *cron.Cron
	Store      ledger.Store
	Refresher  *refresher.Refresher
	AutoCloser *strategy.AutoCloser
	Calculator *performance.Calculator
	Notifier   notifier.Notifier
	Ctx        context.Context
}

// NewScheduler creates a new Scheduler evaluating cron specs in loc.
func NewScheduler(ctx context.Context, loc *time.Location, store ledger.Store, r *refresher.Refresher,
	ac *strategy.AutoCloser, calc *performance.Calculator, n notifier.Notifier) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if n == nil {
		n = notifier.Noop{}
	}
	logger := cronLogger{}
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		Store:      store,
		Refresher:  r,
		AutoCloser: ac,
		Calculator: calc,
		Notifier:   n,
		Ctx:        ctx,
	}
}

// RegisterAll registers a refresh cycle for every spec in refreshCrons and,
// when autoCloseCron is set, a standalone exit-rule sweep.
func (s *Scheduler) RegisterAll(refreshCrons []string, autoCloseCron string) error {
	for _, spec := range refreshCrons {
		if _, err := s.Cron.AddFunc(spec, s.refreshTask); err != nil {
			return fmt.Errorf("register refresh task %q: %w", spec, err)
		}
	}
	if autoCloseCron != "" {
		if _, err := s.Cron.AddFunc(autoCloseCron, s.autoCloseTask); err != nil {
			return fmt.Errorf("register auto close task %q: %w", autoCloseCron, err)
		}
	}
	log.Info().Strs("refresh_crons", refreshCrons).Str("auto_close_cron", autoCloseCron).Msg("tasks registered")
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Info().Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Info().Msg("scheduler stopped")
}

// RunRefreshNow refreshes prices and then applies the exit rules. A sweep
// failure is logged and does not fail the cycle.
func (s *Scheduler) RunRefreshNow(ctx context.Context) (Cycle, error) {
	var c Cycle
	res, err := s.Refresher.RefreshAll(ctx)
	if err != nil {
		return c, err
	}
	c.Refresh = res

	if s.AutoCloser != nil {
		sweep, err := s.AutoCloser.Sweep(ctx)
		if err != nil {
			log.Error().Err(err).Msg("auto close after refresh")
		}
		c.Sweep = sweep
		s.trySend(ctx, notifier.FormatAutoClose(sweep))
	}
	return c, nil
}

func (s *Scheduler) refreshTask() {
	log.Info().Msg("running refresh task")
	c, err := s.RunRefreshNow(s.Ctx)
	if errors.Is(err, refresher.ErrRefreshInProgress) {
		log.Info().Msg("refresh already running, skipped")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("refresh task")
		s.trySend(s.Ctx, fmt.Sprintf("❌ 价格刷新失败: %v", err))
		return
	}
	if len(c.Refresh.Failed) > 0 {
		s.trySend(s.Ctx, notifier.FormatRefresh(c.Refresh))
	}
}

func (s *Scheduler) autoCloseTask() {
	log.Info().Msg("running auto close task")
	res, err := s.AutoCloser.Sweep(s.Ctx)
	if err != nil {
		log.Error().Err(err).Msg("auto close task")
		return
	}
	s.trySend(s.Ctx, notifier.FormatAutoClose(res))
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	switch fields[0] {
	case "/summary", "汇总":
		w := model.DefaultWindow
		if len(fields) > 1 {
			parsed, err := model.ParseWindow(fields[1])
			if err != nil {
				return err.Error()
			}
			w = parsed
		}
		sum, err := s.Calculator.Summary(ctx, w, performance.Filter{})
		if err != nil {
			log.Error().Err(err).Msg("summary command")
			return "❌ 汇总失败"
		}
		return notifier.FormatSummary(sum)
	case "/open", "持仓":
		entries, err := s.Store.List(ctx, ledger.Filter{Status: model.StatusOpen})
		if err != nil {
			log.Error().Err(err).Msg("open command")
			return "❌ 查询持仓失败"
		}
		return notifier.FormatOpen(entries, time.Now())
	case "/refresh", "刷新":
		c, err := s.RunRefreshNow(ctx)
		if errors.Is(err, refresher.ErrRefreshInProgress) {
			return "⏳ 刷新进行中"
		}
		if err != nil {
			return fmt.Sprintf("❌ 价格刷新失败: %v", err)
		}
		return notifier.FormatRefresh(c.Refresh)
	default:
		return "可用命令:\n• /summary [7d|30d|90d|all]\n• /open\n• /refresh"
	}
}

func (s *Scheduler) trySend(ctx context.Context, text string) {
	if text == "" {
		return
	}
	if err := s.Notifier.Send(ctx, text); err != nil {
		log.Error().Err(err).Msg("send notification")
	}
}

// cronLogger routes cron's own logging through zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
