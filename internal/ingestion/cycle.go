package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/storywire/storywire/internal/cache"
	"github.com/storywire/storywire/internal/models"
)

const cycleCounterKey = "fetch:cycle"

// CycleManager rotates through a fixed ordered list of fetch configurations.
// The rotation index is a shared cache counter, so concurrent workers spread
// their queries evenly across the list instead of hammering one slot. If the
// counter is unavailable the pick degrades to uniform random, which keeps
// the long-run distribution even at the cost of short-run fairness.
type CycleManager struct {
	cache   cache.Cache
	configs []models.FetchConfig
	logger  *slog.Logger
}

// NewCycleManager creates a cycle manager over the given configuration list.
func NewCycleManager(c cache.Cache, configs []models.FetchConfig, logger *slog.Logger) (*CycleManager, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("at least one fetch configuration is required")
	}

	return &CycleManager{
		cache:   c,
		configs: configs,
		logger:  logger,
	}, nil
}

// Next atomically advances the rotation and returns the next configuration.
func (m *CycleManager) Next(ctx context.Context) models.FetchConfig {
	n, err := m.cache.Incr(ctx, cycleCounterKey, 0)
	if err != nil {
		m.logger.Warn("fetch cycle counter unavailable, picking random config", "error", err)
		return m.configs[rand.Intn(len(m.configs))]
	}

	cfg := m.configs[int((n-1)%int64(len(m.configs)))]

	m.logger.Debug("fetch cycle advanced", "cycle", n, "config", cfg.String())
	return cfg
}
