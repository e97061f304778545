// Package history persists one row per finished job to a local SQLite
// ledger. The ledger is write-only as far as the pipeline is concerned:
// discovery never consults it, so losing the database file costs nothing
// but the record of past runs.
package history

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Terminal job statuses as stored in the ledger.
const (
	StatusDone      = "done"
	StatusFailed    = "failed"
	StatusCorrupt   = "corrupt"
	StatusStalled   = "stalled"
	StatusCancelled = "cancelled"
)

// Job is one ledger row.
type Job struct {
	gorm.Model
	JobID       string `gorm:"uniqueIndex;size:36"`
	SourcePath  string
	OutputPath  string
	Folder      string
	Tier        string
	Status      string
	Detail      string // failure detail; empty on success
	InputBytes  int64
	OutputBytes int64
	DurationSec float64 // source duration
	ElapsedSec  float64 // wall time spent encoding
	Suspensions int     // throttle pauses during the encode
}

// Recorder appends and reads ledger rows.
type Recorder struct {
	db *gorm.DB
}

// Open creates or opens the ledger at path and migrates the schema. The
// pool is pinned to a single connection: SQLite tolerates concurrent
// writers poorly and the pipeline is sequential anyway.
func Open(path string) (*Recorder, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Job{}); err != nil {
		return nil, fmt.Errorf("migrating history schema: %w", err)
	}
	return &Recorder{db: db}, nil
}

// NewJobID returns a time-ordered identifier so rows sort by creation even
// across restarts.
func NewJobID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// Record appends one row, assigning a JobID when the caller left it empty.
func (r *Recorder) Record(job *Job) error {
	if job.JobID == "" {
		job.JobID = NewJobID()
	}
	return r.db.Create(job).Error
}

// Recent returns up to n rows, newest first.
func (r *Recorder) Recent(n int) ([]Job, error) {
	var jobs []Job
	err := r.db.Order("id DESC").Limit(n).Find(&jobs).Error
	return jobs, err
}

// Close releases the underlying connection.
func (r *Recorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
