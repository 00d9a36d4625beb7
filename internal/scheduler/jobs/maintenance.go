package jobs

import (
	"context"

	"github.com/wonny/demandcast/backend/pkg/logger"
)

// SnapshotPruner removes old feature snapshots
type SnapshotPruner interface {
	Prune(keep int) (int, error)
}

// SnapshotCleanupJob keeps only the newest feature snapshots
type SnapshotCleanupJob struct {
	store  SnapshotPruner
	keep   int
	logger *logger.Logger
}

// NewSnapshotCleanupJob creates a new snapshot cleanup job
func NewSnapshotCleanupJob(store SnapshotPruner, keep int, log *logger.Logger) *SnapshotCleanupJob {
	return &SnapshotCleanupJob{
		store:  store,
		keep:   keep,
		logger: log,
	}
}

// Name returns the job name
func (j *SnapshotCleanupJob) Name() string {
	return "snapshot_cleanup"
}

// Schedule returns the cron schedule (daily at 03:30)
func (j *SnapshotCleanupJob) Schedule() string {
	return "0 30 3 * * *"
}

// Run executes the cleanup
func (j *SnapshotCleanupJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting scheduled snapshot cleanup")

	removed, err := j.store.Prune(j.keep)
	if err != nil {
		return err
	}

	if removed > 0 {
		j.logger.WithField("removed", removed).Info("Snapshot cleanup completed")
	}

	return nil
}
