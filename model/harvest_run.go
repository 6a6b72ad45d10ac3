package model

import (
	"time"

	"gorm.io/datatypes"
)

// HarvestRunStatus is the lifecycle state of one harvest run
type HarvestRunStatus string

const (
	HarvestRunStarted   HarvestRunStatus = "started"
	HarvestRunCompleted HarvestRunStatus = "completed"
	HarvestRunFailed    HarvestRunStatus = "failed"
)

// HarvestRun records the counters of one run
type HarvestRun struct {
	ID                 string           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Categories         string           `gorm:"type:text" json:"categories"`
	Trigger            string           `gorm:"type:varchar(20);not null" json:"trigger"` // manual, cron
	Status             HarvestRunStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	StartedAt          time.Time        `gorm:"not null" json:"started_at"`
	CompletedAt        *time.Time       `json:"completed_at"`
	DurationMs         int64            `json:"duration_ms"`
	DocumentsProcessed int              `json:"documents_processed"`
	DocumentsSucceeded int              `json:"documents_succeeded"`
	DocumentsPartial   int              `json:"documents_partial"`
	DocumentsSkipped   int              `json:"documents_skipped"`
	QuestionsFound     int              `json:"questions_found"`
	QuestionsValid     int              `json:"questions_valid"`
	QuestionsAttempted int              `json:"questions_attempted"`
	QuestionsInserted  int              `json:"questions_inserted"`
	Failures           datatypes.JSON   `json:"failures"` // reason -> count
	ErrorMsg           string           `gorm:"type:text" json:"error_msg,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

func (HarvestRun) TableName() string { return "harvest_runs" }
