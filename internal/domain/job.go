package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JobStatus represents the lifecycle state of a scan job.
// Values include JobStatusPending, JobStatusParsing, JobStatusConverting,
// JobStatusEnriching, JobStatusComplete, JobStatusFailed, and JobStatusCancelled.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusParsing    JobStatus = "parsing"
	JobStatusConverting JobStatus = "converting_identifiers"
	JobStatusEnriching  JobStatus = "enriching"
	JobStatusComplete   JobStatus = "complete"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status is a terminal state.
// Counters never change once a job is terminal.
func (s JobStatus) Terminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed || s == JobStatusCancelled
}

// ChunkStatus represents the lifecycle state of a single chunk.
type ChunkStatus string

const (
	ChunkStatusPending    ChunkStatus = "pending"
	ChunkStatusQueued     ChunkStatus = "queued"
	ChunkStatusProcessing ChunkStatus = "processing"
	ChunkStatusComplete   ChunkStatus = "complete"
	ChunkStatusFailed     ChunkStatus = "failed"
	ChunkStatusCancelled  ChunkStatus = "cancelled"
)

// Terminal reports whether the chunk status is terminal.
func (s ChunkStatus) Terminal() bool {
	return s == ChunkStatusComplete || s == ChunkStatusFailed || s == ChunkStatusCancelled
}

// ErrorGroup is one deduplicated entry in a job's error summary: a failure
// reason, the first row it was seen on, and how many rows hit it.
type ErrorGroup struct {
	Reason    string `json:"reason"`
	SampleRow int    `json:"sample_row"`
	Count     int    `json:"count"`
}

// ErrorSummary is a bounded list of deduplicated error groups stored as JSON.
type ErrorSummary []ErrorGroup

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded representation of the summary.
//   - error: non-nil if marshaling fails.
func (s ErrorSummary) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (s *ErrorSummary) Scan(value interface{}) error {
	if value == nil {
		*s = ErrorSummary{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan ErrorSummary")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, s)
}

// ScanJob represents one bulk supplier-list upload and its aggregate progress.
// Counters are a projection of chunk state: processed = succeeded + failed + skipped
// holds at all times, and CompletedAt is set exactly once on entering a terminal state.
type ScanJob struct {
	ID          string       `gorm:"type:text;primaryKey" json:"id"`
	TenantID    string       `gorm:"type:text;not null;index:idx_scan_jobs_tenant" json:"tenant_id"`
	SourceFile  string       `gorm:"type:text" json:"source_file,omitempty"`
	StorageKey  string       `gorm:"type:text" json:"storage_key,omitempty"`
	Marketplace string       `gorm:"type:text;not null" json:"marketplace"`
	TotalRows   int          `gorm:"default:0" json:"total_rows"`
	ChunkSize   int          `gorm:"default:0" json:"chunk_size"`
	Processed   int          `gorm:"default:0" json:"processed"`
	Succeeded   int          `gorm:"default:0" json:"succeeded"`
	Failed      int          `gorm:"default:0" json:"failed"`
	Skipped     int          `gorm:"default:0" json:"skipped"`
	Status      JobStatus    `gorm:"type:text;index:idx_scan_jobs_status;default:pending" json:"status"`
	Errors      ErrorSummary `gorm:"type:text" json:"errors"`
	CreatedAt   time.Time    `json:"created_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// TableName returns the database table name for ScanJob.
func (ScanJob) TableName() string {
	return "scan_jobs"
}

// RowError records one failed row inside a chunk.
type RowError struct {
	RowIndex int    `json:"row_index"`
	Code     string `json:"code,omitempty"`
	Reason   string `json:"reason"`
}

// RowErrorList stores a chunk's row errors as JSON.
type RowErrorList []RowError

// Value implements the driver.Valuer interface for database serialization.
func (l RowErrorList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (l *RowErrorList) Scan(value interface{}) error {
	if value == nil {
		*l = RowErrorList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan RowErrorList")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, l)
}

// Chunk is a contiguous slice [StartRow, EndRow) of one job's rows, processed
// as a single concurrency unit. Index is unique within a job and chunks
// partition the job's row range without gaps or overlap.
type Chunk struct {
	ID          string       `gorm:"type:text;primaryKey" json:"id"`
	JobID       string       `gorm:"type:text;not null;index:idx_chunks_job" json:"job_id"`
	Index       int          `gorm:"column:chunk_index;not null" json:"index"`
	StartRow    int          `gorm:"not null" json:"start_row"`
	EndRow      int          `gorm:"not null" json:"end_row"`
	Status      ChunkStatus  `gorm:"type:text;default:pending" json:"status"`
	Processed   int          `gorm:"default:0" json:"processed"`
	Succeeded   int          `gorm:"default:0" json:"succeeded"`
	Failed      int          `gorm:"default:0" json:"failed"`
	Skipped     int          `gorm:"default:0" json:"skipped"`
	RowErrors   RowErrorList `gorm:"type:text" json:"row_errors"`
	QueuedAt    *time.Time   `json:"queued_at,omitempty"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// TableName returns the database table name for Chunk.
func (Chunk) TableName() string {
	return "scan_chunks"
}

// RowCount returns the number of rows covered by the chunk.
func (c *Chunk) RowCount() int {
	return c.EndRow - c.StartRow
}
