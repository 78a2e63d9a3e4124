package syncjob

import (
	"time"

	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/opportunities"
	"gorm.io/gorm"
)

// RunStatus enumerates the outcomes recorded for a synchronization run.
type RunStatus string

const (
	// RunStatusSucceeded marks a committed synchronization.
	RunStatusSucceeded RunStatus = "succeeded"
	// RunStatusFailed marks a run that left the store untouched.
	RunStatusFailed RunStatus = "failed"
)

// SyncRun is the append-only history of synchronization attempts.
type SyncRun struct {
	RunID             string    `gorm:"column:run_id;primaryKey;size:64;not null"`
	StartedAt         time.Time `gorm:"column:started_at;not null;index:idx_sync_runs_started"`
	FinishedAt        time.Time `gorm:"column:finished_at;not null"`
	Status            RunStatus `gorm:"column:status;size:16;not null"`
	ErrorCode         string    `gorm:"column:error_code;size:190;not null;default:''"`
	ErrorMessage      string    `gorm:"column:error_message;type:text;not null;default:''"`
	Fetched           int       `gorm:"column:fetched;not null;default:0"`
	Created           int       `gorm:"column:created;not null;default:0"`
	Updated           int       `gorm:"column:updated;not null;default:0"`
	Unchanged         int       `gorm:"column:unchanged;not null;default:0"`
	Deleted           int       `gorm:"column:deleted;not null;default:0"`
	CategoriesCreated int       `gorm:"column:categories_created;not null;default:0"`
	LinksCreated      int       `gorm:"column:links_created;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (SyncRun) TableName() string {
	return "sync_runs"
}

// Report returns the counters of the run.
func (r SyncRun) Report() opportunities.SyncReport {
	return opportunities.SyncReport{
		Fetched:           r.Fetched,
		Created:           r.Created,
		Updated:           r.Updated,
		Unchanged:         r.Unchanged,
		Deleted:           r.Deleted,
		CategoriesCreated: r.CategoriesCreated,
		LinksCreated:      r.LinksCreated,
	}
}

func (r *SyncRun) applyReport(report opportunities.SyncReport) {
	r.Fetched = report.Fetched
	r.Created = report.Created
	r.Updated = report.Updated
	r.Unchanged = report.Unchanged
	r.Deleted = report.Deleted
	r.CategoriesCreated = report.CategoriesCreated
	r.LinksCreated = report.LinksCreated
}

// Migrate creates the run history table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&SyncRun{})
}
