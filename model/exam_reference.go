package model

import (
	"time"
)

// Reference tables share one shape: an opaque string id, a natural-key name and,
// for the hierarchical tables, the parent id that completes the key. Unique indexes
// carry the natural key so ON CONFLICT DO NOTHING has a conflict target.

// ExamPosition is the job position / exam name an exam paper was written for
type ExamPosition struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name      string    `gorm:"type:varchar(500);not null;uniqueIndex" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (ExamPosition) TableName() string { return "exam_positions" }

// ExamInstitution is the organizing institution (órgão)
type ExamInstitution struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name      string    `gorm:"type:varchar(500);not null;uniqueIndex" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (ExamInstitution) TableName() string { return "exam_institutions" }

// ExamBanca is the administering body that wrote and applied the exam
type ExamBanca struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name      string    `gorm:"type:varchar(500);not null;uniqueIndex" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (ExamBanca) TableName() string { return "exam_bancas" }

// EducationLevel is the schooling level required by the exam
type EducationLevel struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (EducationLevel) TableName() string { return "education_levels" }

// KnowledgeArea is the top of the subject hierarchy
type KnowledgeArea struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (KnowledgeArea) TableName() string { return "exam_areas" }

// QuestionStyle is the answer format tag (ME5, ME4, CE)
type QuestionStyle struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name      string    `gorm:"type:varchar(50);not null;uniqueIndex" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (QuestionStyle) TableName() string { return "question_styles" }

// ExamSubject is keyed by (name, area)
type ExamSubject struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name       string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_exam_subject_name_area" json:"name"`
	ExamAreaID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_exam_subject_name_area" json:"exam_area_id"`
	CreatedAt  time.Time `json:"created_at"`

	Area KnowledgeArea `gorm:"foreignKey:ExamAreaID;constraint:OnDelete:CASCADE" json:"-"`
}

func (ExamSubject) TableName() string { return "exam_subjects" }

// ExamTopic is keyed by (name, subject)
type ExamTopic struct {
	ID            string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name          string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_exam_topic_name_subject" json:"name"`
	ExamSubjectID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_exam_topic_name_subject" json:"exam_subject_id"`
	CreatedAt     time.Time `json:"created_at"`

	Subject ExamSubject `gorm:"foreignKey:ExamSubjectID;constraint:OnDelete:CASCADE" json:"-"`
}

func (ExamTopic) TableName() string { return "exam_topics" }

// ExamSubtopic is keyed by (name, topic)
type ExamSubtopic struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name        string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_exam_subtopic_name_topic" json:"name"`
	ExamTopicID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_exam_subtopic_name_topic" json:"exam_topic_id"`
	CreatedAt   time.Time `json:"created_at"`

	Topic ExamTopic `gorm:"foreignKey:ExamTopicID;constraint:OnDelete:CASCADE" json:"-"`
}

func (ExamSubtopic) TableName() string { return "exam_subtopics" }
