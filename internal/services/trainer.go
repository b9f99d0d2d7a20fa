package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pinpung/pinpung-ai/internal/clients/redis"
	"github.com/pinpung/pinpung-ai/internal/platform/logger"
	"github.com/pinpung/pinpung-ai/internal/recommender"
	"github.com/pinpung/pinpung-ai/internal/repos"
)

// ModelArtifact is one promoted model version. Artifacts are immutable once
// promoted; serving reads whichever artifact is current at request time.
type ModelArtifact struct {
	Model   *recommender.Model
	Version int64
	BuiltAt time.Time
}

type TrainerConfig struct {
	Interval       time.Duration
	BuildTimeout   time.Duration
	StaleThreshold int64
	FitOptions     recommender.FitOptions
	BuildOptions   BuildOptions
}

func (c TrainerConfig) withDefaults() TrainerConfig {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.BuildTimeout <= 0 {
		c.BuildTimeout = 2 * time.Minute
	}
	if c.StaleThreshold <= 0 {
		c.StaleThreshold = 1
	}
	return c
}

// Trainer rebuilds the recommendation model off the request path. Writes
// mark the model stale; the trainer coalesces staleness signals and rebuilds
// at most one model at a time.
type Trainer interface {
	Start(ctx context.Context) error
	MarkStale(ctx context.Context, reason string)
	Current() *ModelArtifact
	TrainNow(ctx context.Context) (*ModelArtifact, error)
}

type trainer struct {
	log              *logger.Logger
	cfg              TrainerConfig
	builder          FeatureMatrixBuilder
	userPlaceTagRepo repos.UserPlaceTagRepo
	bus              redis.ModelBus // nil when running single-instance

	mu      sync.RWMutex
	current *ModelArtifact
	version atomic.Int64

	pendingStale atomic.Int64
	kick         chan struct{}
	trainMu      sync.Mutex
}

func NewTrainer(
	baseLog *logger.Logger,
	cfg TrainerConfig,
	builder FeatureMatrixBuilder,
	userPlaceTagRepo repos.UserPlaceTagRepo,
	bus redis.ModelBus,
) Trainer {
	serviceLog := baseLog.With("service", "Trainer")
	return &trainer{
		log:              serviceLog,
		cfg:              cfg.withDefaults(),
		builder:          builder,
		userPlaceTagRepo: userPlaceTagRepo,
		bus:              bus,
		kick:             make(chan struct{}, 1),
	}
}

func (t *trainer) Start(ctx context.Context) error {
	if t.bus != nil {
		err := t.bus.StartForwarder(ctx, func(e redis.ModelEvent) {
			if e.Kind != redis.ModelEventStale {
				return
			}
			t.pendingStale.Add(1)
			t.signal()
		})
		if err != nil {
			return fmt.Errorf("start model bus forwarder: %w", err)
		}
	}

	go t.loop(ctx)
	return nil
}

func (t *trainer) loop(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := t.TrainNow(ctx); err != nil && ctx.Err() == nil {
				t.log.Error("periodic model rebuild failed", "error", err)
			}
		case <-t.kick:
			if t.pendingStale.Load() < t.cfg.StaleThreshold {
				continue
			}
			t.pendingStale.Store(0)
			if _, err := t.TrainNow(ctx); err != nil && ctx.Err() == nil {
				t.log.Error("stale-triggered model rebuild failed", "error", err)
			}
		}
	}
}

// MarkStale records a mutation of the stores behind the model. With a bus
// every replica hears about it; without one the local loop is kicked.
func (t *trainer) MarkStale(ctx context.Context, reason string) {
	if t.bus != nil {
		err := t.bus.Publish(ctx, redis.ModelEvent{
			Kind:   redis.ModelEventStale,
			Reason: reason,
		})
		if err == nil {
			return
		}
		t.log.Warn("model stale publish failed; falling back to local signal", "error", err)
	}
	t.pendingStale.Add(1)
	t.signal()
}

func (t *trainer) signal() {
	select {
	case t.kick <- struct{}{}:
	default:
	}
}

func (t *trainer) Current() *ModelArtifact {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// TrainNow builds a snapshot over every user with interactions, fits a model
// and promotes it. Concurrent callers serialize; each gets the artifact that
// was current when its turn finished.
func (t *trainer) TrainNow(ctx context.Context) (*ModelArtifact, error) {
	t.trainMu.Lock()
	defer t.trainMu.Unlock()

	buildCtx, cancel := context.WithTimeout(ctx, t.cfg.BuildTimeout)
	defer cancel()

	userIDs, err := t.userPlaceTagRepo.ListAllUserIDs(buildCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("list users for training: %w", err)
	}

	opts := t.cfg.BuildOptions
	opts.IncludeTrendingPseudoUsers = true
	matrices, err := t.builder.Build(buildCtx, userIDs, nil, opts)
	if err != nil {
		return nil, fmt.Errorf("build training matrices: %w", err)
	}

	start := time.Now()
	done := make(chan *recommender.Model, 1)
	go func() {
		done <- recommender.Fit(matrices, t.cfg.FitOptions)
	}()

	var model *recommender.Model
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case model = <-done:
	}

	artifact := &ModelArtifact{
		Model:   model,
		Version: t.version.Add(1),
		BuiltAt: time.Now().UTC(),
	}
	t.mu.Lock()
	t.current = artifact
	t.mu.Unlock()

	t.log.Info("model promoted",
		"version", artifact.Version,
		"users", len(matrices.UserKeys),
		"items", len(matrices.ItemIDs),
		"interactions", len(matrices.Interactions),
		"fit_duration", time.Since(start).String(),
	)

	if t.bus != nil {
		if err := t.bus.Publish(ctx, redis.ModelEvent{
			Kind:    redis.ModelEventPromoted,
			Version: artifact.Version,
		}); err != nil {
			t.log.Warn("model promoted publish failed", "error", err)
		}
	}
	return artifact, nil
}
