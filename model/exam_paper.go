package model

import (
	"time"

	"gorm.io/datatypes"
)

// ExamPaper is one persisted exam document, keyed by the storage URI of its booklet
type ExamPaper struct {
	ID              string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	FileStoragePath string         `gorm:"type:varchar(1024);not null;uniqueIndex" json:"file_storage_path"`
	AnswerKeyPath   *string        `gorm:"type:varchar(1024)" json:"answer_key_path,omitempty"`
	SourceURL       string         `gorm:"type:varchar(1024);index" json:"source_url"`
	YearApplied     *int           `json:"year_applied,omitempty"`
	Description     *string        `gorm:"type:text" json:"description,omitempty"`
	ExamPositionID  *string        `gorm:"type:varchar(36);index" json:"exam_position_id,omitempty"`
	AttachmentURLs  datatypes.JSON `json:"attachment_urls,omitempty"` // every PDF link found on the detail page
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`

	Position *ExamPosition `gorm:"foreignKey:ExamPositionID;constraint:OnDelete:SET NULL" json:"position,omitempty"`
}

func (ExamPaper) TableName() string { return "exam_papers" }
