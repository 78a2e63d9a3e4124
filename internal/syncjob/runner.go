package syncjob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/opportunities"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ErrorCodeFetchFailed = "catalog.fetch_failed"
	errorCodeSyncFailed  = "syncjob.sync_failed"
)

var (
	// ErrNoRuns indicates that no synchronization has been recorded yet.
	ErrNoRuns = errors.New("syncjob: no runs recorded")

	errMissingDatabase     = errors.New("syncjob: database handle is required")
	errMissingSource       = errors.New("syncjob: record source is required")
	errMissingSynchronizer = errors.New("syncjob: synchronizer is required")
	errMissingIDProvider   = errors.New("syncjob: id provider is required")
)

// RecordSource yields the full catalog.
type RecordSource interface {
	FetchAll(ctx context.Context) ([]catalog.Record, error)
}

// Synchronizer applies a complete catalog to the store.
type Synchronizer interface {
	Synchronize(ctx context.Context, records []catalog.Record) (opportunities.SyncReport, error)
}

// Notifier is told about every committed synchronization.
type Notifier interface {
	NotifyCatalogUpdated(run SyncRun)
}

// RunnerConfig describes the collaborators of a Runner.
type RunnerConfig struct {
	Database     *gorm.DB
	Source       RecordSource
	Synchronizer Synchronizer
	Notifier     Notifier
	IDProvider   opportunities.IDProvider
	Clock        func() time.Time
	Logger       *zap.Logger
}

// Runner performs one fetch-then-synchronize pass and records its outcome.
type Runner struct {
	db           *gorm.DB
	source       RecordSource
	synchronizer Synchronizer
	notifier     Notifier
	idProvider   opportunities.IDProvider
	clock        func() time.Time
	logger       *zap.Logger
}

// NewRunner validates the configuration.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Source == nil {
		return nil, errMissingSource
	}
	if cfg.Synchronizer == nil {
		return nil, errMissingSynchronizer
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		db:           cfg.Database,
		source:       cfg.Source,
		synchronizer: cfg.Synchronizer,
		notifier:     cfg.Notifier,
		idProvider:   cfg.IDProvider,
		clock:        clock,
		logger:       logger,
	}, nil
}

// Run fetches the catalog and synchronizes the store with it. A fetch failure
// leaves the store untouched. Every attempt is appended to the run history.
func (r *Runner) Run(ctx context.Context) (opportunities.SyncReport, error) {
	run := SyncRun{StartedAt: r.clock().UTC()}

	report, err := r.fetchAndSynchronize(ctx)
	run.FinishedAt = r.clock().UTC()
	if err != nil {
		run.Status = RunStatusFailed
		run.ErrorCode = ErrorCode(err)
		run.ErrorMessage = err.Error()
		r.logger.Error("catalog synchronization failed",
			zap.String("error_code", run.ErrorCode),
			zap.Duration("elapsed", run.FinishedAt.Sub(run.StartedAt)),
			zap.Error(err))
	} else {
		run.Status = RunStatusSucceeded
		run.applyReport(report)
	}

	// The run row is written even when ctx has expired so failures stay visible.
	if recordErr := r.record(context.WithoutCancel(ctx), &run); recordErr != nil {
		r.logger.Warn("failed to record synchronization run", zap.Error(recordErr))
	}

	if err != nil {
		return opportunities.SyncReport{}, err
	}
	if r.notifier != nil {
		r.notifier.NotifyCatalogUpdated(run)
	}
	return report, nil
}

func (r *Runner) fetchAndSynchronize(ctx context.Context) (opportunities.SyncReport, error) {
	records, err := r.source.FetchAll(ctx)
	if err != nil {
		return opportunities.SyncReport{}, err
	}
	return r.synchronizer.Synchronize(ctx, records)
}

func (r *Runner) record(ctx context.Context, run *SyncRun) error {
	runID, err := r.idProvider.NewID()
	if err != nil {
		return fmt.Errorf("generate run id: %w", err)
	}
	run.RunID = runID
	return r.db.WithContext(ctx).Create(run).Error
}

// LastRun returns the most recently started run.
func (r *Runner) LastRun(ctx context.Context) (SyncRun, error) {
	var run SyncRun
	err := r.db.WithContext(ctx).
		Order("started_at DESC, run_id DESC").
		Take(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SyncRun{}, ErrNoRuns
	}
	if err != nil {
		return SyncRun{}, err
	}
	return run, nil
}

// ErrorCode classifies a run failure into the code stored with the run.
func ErrorCode(err error) string {
	var fetchErr *catalog.FetchError
	if errors.As(err, &fetchErr) {
		return ErrorCodeFetchFailed
	}
	var serviceErr *opportunities.ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code()
	}
	return errorCodeSyncFailed
}
