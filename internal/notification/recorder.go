package notification

import (
	"context"
	"sync"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/datastore/entities"
	"github.com/fleetwatch/fleetwatch/internal/datastore/repository"
	"github.com/fleetwatch/fleetwatch/internal/errors"
	"github.com/fleetwatch/fleetwatch/internal/logger"
)

const (
	// cleanupInterval is how often expired condition log entries are purged.
	cleanupInterval = time.Hour
	// cleanupTimeout bounds a single purge.
	cleanupTimeout = 30 * time.Second
)

// Recorder persists every notification to the condition log.
type Recorder struct {
	repo repository.ConditionLogRepository
	log  logger.Logger

	mu          sync.Mutex
	cleanupStop chan struct{}
	cleanupDone chan struct{}
}

// NewRecorder creates a Recorder writing through repo.
func NewRecorder(repo repository.ConditionLogRepository, log logger.Logger) *Recorder {
	return &Recorder{repo: repo, log: log.Module("condition-log")}
}

// Name implements Handler.
func (r *Recorder) Name() string { return "condition-log" }

// Handle implements Handler.
func (r *Recorder) Handle(ctx context.Context, n *Notification) error {
	kind := entities.ConditionLogActivate
	if n.Kind == KindDeactivate {
		kind = entities.ConditionLogDeactivate
	}
	entry := &entities.ConditionLog{
		ConditionID: n.ConditionID,
		Kind:        kind,
		Value:       n.ValueString(),
		Detail:      n.Detail,
		FiredAt:     n.Timestamp,
	}
	if err := r.repo.Save(ctx, entry); err != nil {
		return errors.New(err).
			Component("notification").
			Category(errors.CategoryDatabase).
			Context("condition_id", n.ConditionID).
			Context("kind", kind).
			Build()
	}
	return nil
}

// Cleanup deletes entries older than retention.
func (r *Recorder) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	return r.repo.DeleteBefore(ctx, time.Now().Add(-retention))
}

// StartRetentionCleanup starts a goroutine purging entries older than retention
// every interval. A non-positive retention disables cleanup. A non-positive
// interval uses the default of one hour.
func (r *Recorder) StartRetentionCleanup(retention, interval time.Duration) {
	if retention <= 0 {
		return
	}
	if interval <= 0 {
		interval = cleanupInterval
	}
	// Stop any existing cleanup goroutine before starting a new one.
	r.Stop()

	r.mu.Lock()
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	r.cleanupStop, r.cleanupDone = stopCh, doneCh
	r.mu.Unlock()

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
				deleted, err := r.Cleanup(ctx, retention)
				cancel()
				if err != nil {
					r.log.Error("condition log cleanup failed", logger.Error(err))
				} else if deleted > 0 {
					r.log.Info("condition log cleanup completed",
						logger.Int64("deleted", deleted),
						logger.Duration("retention", retention))
				}
			case <-stopCh:
				return
			}
		}
	}()
}

// Stop ends the cleanup goroutine and waits for it to exit.
func (r *Recorder) Stop() {
	r.mu.Lock()
	stopCh, doneCh := r.cleanupStop, r.cleanupDone
	r.cleanupStop, r.cleanupDone = nil, nil
	r.mu.Unlock()
	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}
}
