package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Question is one persisted exam question with every taxonomy reference resolved
type Question struct {
	ID                string  `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OriginUser        string  `gorm:"type:varchar(36);not null;index" json:"origin_user"`
	SourceExamPaperID string  `gorm:"type:varchar(36);not null;index" json:"source_exam_paper_id"`
	SourceSequence    *int    `json:"source_sequence,omitempty"`
	AreaID            *string `gorm:"column:area;type:varchar(36)" json:"area,omitempty"`
	ExamSubjectID     string  `gorm:"type:varchar(36);not null;index" json:"exam_subject_id"`
	ExamTopicID       *string `gorm:"type:varchar(36);index" json:"exam_topic_id,omitempty"`
	ExamSubtopicID    *string `gorm:"type:varchar(36)" json:"exam_subtopic_id,omitempty"`
	ExamPositionID    string  `gorm:"type:varchar(36);not null;index" json:"exam_position_id"`
	QuestionStyleID   string  `gorm:"type:varchar(36);not null" json:"question_style_id"`
	ExamInstitutionID *string `gorm:"type:varchar(36)" json:"exam_institution_id,omitempty"`
	ExamBancaID       *string `gorm:"type:varchar(36)" json:"exam_banca_id,omitempty"`
	EducationLevelID  *string `gorm:"type:varchar(36)" json:"education_level_id,omitempty"`

	Statement       string   `gorm:"type:text;not null" json:"statement"`
	ItemA           *string  `gorm:"type:text" json:"item_a,omitempty"`
	ExplanationA    *string  `gorm:"type:text" json:"explanation_a,omitempty"`
	ItemB           *string  `gorm:"type:text" json:"item_b,omitempty"`
	ExplanationB    *string  `gorm:"type:text" json:"explanation_b,omitempty"`
	ItemC           *string  `gorm:"type:text" json:"item_c,omitempty"`
	ExplanationC    *string  `gorm:"type:text" json:"explanation_c,omitempty"`
	ItemD           *string  `gorm:"type:text" json:"item_d,omitempty"`
	ExplanationD    *string  `gorm:"type:text" json:"explanation_d,omitempty"`
	ItemE           *string  `gorm:"type:text" json:"item_e,omitempty"`
	ExplanationE    *string  `gorm:"type:text" json:"explanation_e,omitempty"`
	ItemText        *string  `gorm:"type:text" json:"item_text,omitempty"`
	ExplanationText *string  `gorm:"type:text" json:"explanation_text,omitempty"`
	CorrectOption   string   `gorm:"type:varchar(20);not null" json:"correct_option"`
	ReferenceText   *string  `gorm:"type:text" json:"reference_text,omitempty"`
	ReferenceImage  *string  `gorm:"column:reference_image_url;type:text" json:"reference_image_url,omitempty"`
	SourceYear      *int     `json:"source_year,omitempty"`
	DifficultyLevel *int     `json:"difficulty_level,omitempty"`
	ConfidenceScore *float64 `json:"ai_confidence_score,omitempty"`
	ExamType        *string  `gorm:"type:varchar(100)" json:"exam_type,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (Question) TableName() string { return "questions" }

// QuestionStyle tags accepted from the analysis service
const (
	StyleFiveOptions = "ME5"
	StyleFourOptions = "ME4"
	StyleTrueFalse   = "CE"
)

// DefaultKnowledgeArea is assumed when the analysis service leaves the area empty
const DefaultKnowledgeArea = "Conhecimentos Gerais"

// QuestionExtraction is one question object recovered from analysis-service output.
// Taxonomy names are free text suggested by the service and are not validated here.
type QuestionExtraction struct {
	OriginalNumber            FlexibleInt `json:"original_number"`
	Statement                 string      `json:"statement"`
	ItemA                     string      `json:"item_a"`
	ItemB                     string      `json:"item_b"`
	ItemC                     string      `json:"item_c"`
	ItemD                     string      `json:"item_d"`
	ItemE                     string      `json:"item_e"`
	ExplanationA              string      `json:"explanation_a"`
	ExplanationB              string      `json:"explanation_b"`
	ExplanationC              string      `json:"explanation_c"`
	ExplanationD              string      `json:"explanation_d"`
	ExplanationE              string      `json:"explanation_e"`
	ItemText                  string      `json:"item_text"`
	ExplanationText           string      `json:"explanation_text"`
	CorrectOption             string      `json:"correct_option"`
	ReferenceText             string      `json:"reference_text"`
	ReferenceImageDescription string      `json:"reference_image_description"`
	Subject                   string      `json:"subject"`
	Topic                     string      `json:"topic"`
	Subtopic                  string      `json:"subtopic"`
	KnowledgeArea             string      `json:"knowledge_area"`
	QuestionStyle             string      `json:"question_style"`
	DifficultyLevel           FlexibleInt `json:"difficulty_level"`
	ConfidenceScore           *float64    `json:"confidence_score"`
}

// AreaName returns the suggested knowledge area, falling back to DefaultKnowledgeArea
func (q *QuestionExtraction) AreaName() string {
	if area := strings.TrimSpace(q.KnowledgeArea); area != "" {
		return area
	}
	return DefaultKnowledgeArea
}

// Valid reports whether the record carries the fields every stored question needs
func (q *QuestionExtraction) Valid() bool {
	return strings.TrimSpace(q.Statement) != "" && strings.TrimSpace(q.CorrectOption) != ""
}

// FlexibleInt decodes a JSON number, a numeric string or null.
// Anything else decodes to an unset value instead of failing the whole object.
type FlexibleInt struct {
	Value int
	Set   bool
}

func (f *FlexibleInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*f = FlexibleInt{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case float64:
		f.Value, f.Set = int(v), true
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			f.Value, f.Set = n, true
		}
	}
	return nil
}

func (f FlexibleInt) MarshalJSON() ([]byte, error) {
	if !f.Set {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(f.Value)), nil
}

// Ptr returns nil when the value was absent
func (f FlexibleInt) Ptr() *int {
	if !f.Set {
		return nil
	}
	v := f.Value
	return &v
}
