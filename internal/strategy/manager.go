package strategy

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Patch is a partial StopConfig update. Nil fields are left unchanged.
type Patch struct {
	StopProfitPct  *float64 `json:"stop_profit_pct,omitempty"`
	StopLossPct    *float64 `json:"stop_loss_pct,omitempty"`
	MaxHoldingDays *int     `json:"max_holding_days,omitempty"`
	AutoClose      *bool    `json:"auto_close,omitempty"`
}

// Manager guards the live stop config and persists every change.
type Manager struct {
	mu       sync.Mutex
	cfg      StopConfig
	filePath string
}

// NewManager loads the stop config from filePath. When the file is missing
// the manager starts from initial, which must be valid, and writes it out.
// An empty filePath keeps the config in memory only.
func NewManager(filePath string, initial StopConfig) (*Manager, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{cfg: initial, filePath: filePath}
	if filePath == "" {
		return m, nil
	}

	cfg, found, err := LoadState(filePath)
	if err != nil {
		return nil, err
	}
	if !found {
		return m, m.save()
	}
	if err := cfg.Validate(); err != nil {
		log.Warn().Err(err).Str("file", filePath).Msg("stored stop config invalid, using configured defaults")
		return m, m.save()
	}
	m.cfg = cfg
	return m, nil
}

// Get returns a copy of the current stop config.
func (m *Manager) Get() StopConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Update applies p. The change is rejected as a whole if the result is
// invalid.
func (m *Manager) Update(p Patch) (StopConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.cfg
	if p.StopProfitPct != nil {
		next.StopProfitPct = *p.StopProfitPct
	}
	if p.StopLossPct != nil {
		next.StopLossPct = *p.StopLossPct
	}
	if p.MaxHoldingDays != nil {
		next.MaxHoldingDays = *p.MaxHoldingDays
	}
	if p.AutoClose != nil {
		next.AutoClose = *p.AutoClose
	}
	if err := next.Validate(); err != nil {
		return m.cfg, err
	}

	prev := m.cfg
	m.cfg = next
	if err := m.save(); err != nil {
		m.cfg = prev
		return prev, err
	}
	log.Info().
		Float64("stop_profit_pct", next.StopProfitPct).
		Float64("stop_loss_pct", next.StopLossPct).
		Int("max_holding_days", next.MaxHoldingDays).
		Bool("auto_close", next.AutoClose).
		Msg("stop config updated")
	return next, nil
}

func (m *Manager) save() error {
	if m.filePath == "" {
		return nil
	}
	return SaveState(m.filePath, m.cfg)
}
