package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// Expirer marks overdue offers as expired on behalf of admin.
type Expirer interface {
	ExpireDue(admin [20]byte, limit int) ([][20]byte, error)
}

type Config struct {
	Admin     [20]byte
	Interval  time.Duration
	BatchSize int
	Logger    *slog.Logger
}

// Sweeper periodically moves offers past their deadline to expired so the
// open-offer index and statistics stay current.
type Sweeper struct {
	expirer   Expirer
	admin     [20]byte
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

func New(expirer Expirer, cfg Config) *Sweeper {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		expirer:   expirer,
		admin:     cfg.Admin,
		interval:  interval,
		batchSize: cfg.BatchSize,
		logger:    logger,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.Sweep()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep expires one batch and returns how many offers it moved.
func (s *Sweeper) Sweep() int {
	expired, err := s.expirer.ExpireDue(s.admin, s.batchSize)
	if err != nil {
		s.logger.Error("expiry sweep failed", "expired", len(expired), "error", err)
		return len(expired)
	}
	if len(expired) > 0 {
		s.logger.Info("expiry sweep", "expired", len(expired))
	}
	return len(expired)
}
