package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"school-approval-service/internal/events"
	"school-approval-service/internal/repository"
)

// ExpirySweep converges the stored status of delegation notices whose
// expiry date has passed. Expiry is enforced at decision time through
// the derived checks; the sweep keeps listings and reports consistent
// with what those checks already concluded.
type ExpirySweep struct {
	repo      repository.DelegationRepositoryInterface
	publisher *events.Publisher
	logger    *logrus.Logger
	interval  time.Duration
	stopCh    chan struct{}
}

// NewExpirySweep creates a new expiry sweep job
func NewExpirySweep(repo repository.DelegationRepositoryInterface, publisher *events.Publisher, logger *logrus.Logger, interval time.Duration) *ExpirySweep {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &ExpirySweep{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the sweep loop. It runs once immediately, then on every
// tick until stopped.
func (j *ExpirySweep) Start(ctx context.Context) {
	j.logger.Info("Delegation expiry sweep started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.runSweep(ctx)

	for {
		select {
		case <-ticker.C:
			j.runSweep(ctx)
		case <-j.stopCh:
			j.logger.Info("Delegation expiry sweep stopped")
			return
		case <-ctx.Done():
			j.logger.Info("Delegation expiry sweep context cancelled")
			return
		}
	}
}

// Stop signals the job to stop
func (j *ExpirySweep) Stop() {
	close(j.stopCh)
}

// runSweep moves expired active notices to expired. The guarded update
// is idempotent, so overlapping runs or a race with a manual revoke
// settle on a single terminal state.
func (j *ExpirySweep) runSweep(ctx context.Context) {
	expired, err := j.repo.ExpireActiveNotices(ctx, time.Now())
	if err != nil {
		j.logger.Errorf("Failed to expire delegation notices: %v", err)
		return
	}
	if expired == 0 {
		return
	}

	j.logger.Infof("Expired %d delegation notices", expired)

	if j.publisher != nil {
		j.publisher.Publish(events.DelegationExpired, events.WorkflowEvent{
			Status:   "expired",
			Comments: "expiry sweep",
		})
	}
}
