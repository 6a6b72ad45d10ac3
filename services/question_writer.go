package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sahilchouksey/exam-harvester/model"
)

// DefaultExamType is stamped on every question written by a harvest
const DefaultExamType = "Concurso Público"

// QuestionWriterConfig holds writer settings
type QuestionWriterConfig struct {
	SystemUserID string // author of every question row
	BatchSize    int    // rows per INSERT statement inside the bulk write
	ExamType     string
}

// WriteReport counts what the writer did with one run's results
type WriteReport struct {
	Inserted       int // rows the store confirmed
	Attempted      int // rows handed to the bulk write
	DroppedRecords int // records missing statement, subject, style or position
	SkippedPapers  int // documents whose exam paper row could not be obtained

	// Committed maps a document identifier to its rows in the committed
	// write. Empty when the write failed.
	Committed map[string]int
}

// QuestionWriter maps aggregated document results onto question rows. It only
// reads ids from the populated TaxonomyCache and never creates reference rows.
type QuestionWriter struct {
	db       *gorm.DB
	cache    *TaxonomyCache
	userID   string
	batch    int
	examType string
}

func NewQuestionWriter(db *gorm.DB, cache *TaxonomyCache, config QuestionWriterConfig) (*QuestionWriter, error) {
	if strings.TrimSpace(config.SystemUserID) == "" {
		return nil, fmt.Errorf("system user id is required")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 500
	}
	if config.ExamType == "" {
		config.ExamType = DefaultExamType
	}
	return &QuestionWriter{
		db:       db,
		cache:    cache,
		userID:   config.SystemUserID,
		batch:    config.BatchSize,
		examType: config.ExamType,
	}, nil
}

// Write resolves every record and stores all surviving rows in one bulk call.
func (w *QuestionWriter) Write(ctx context.Context, results []*DocumentResult) (WriteReport, error) {
	var report WriteReport
	var rows []model.Question
	perDocument := make(map[string]int, len(results))

	for _, res := range results {
		if res == nil {
			continue
		}
		docRows, dropped, err := w.buildRows(ctx, res)
		if err != nil {
			log.Printf("QuestionWriter: skipping %s: %v", res.Document.Identifier, err)
			report.SkippedPapers++
			continue
		}
		report.DroppedRecords += dropped
		perDocument[res.Document.Identifier] += len(docRows)
		rows = append(rows, docRows...)
	}

	report.Attempted = len(rows)
	if len(rows) == 0 {
		return report, nil
	}

	// Batches share one transaction; RowsAffected counts rolled-back batches too.
	result := w.db.WithContext(ctx).Session(&gorm.Session{CreateBatchSize: w.batch}).Create(&rows)
	if result.Error != nil {
		log.Printf("QuestionWriter: bulk insert failed: %v", result.Error)
		return report, fmt.Errorf("bulk insert of %d questions: %w", len(rows), result.Error)
	}
	report.Inserted = int(result.RowsAffected)
	report.Committed = perDocument

	log.Printf("QuestionWriter: inserted %d of %d questions", report.Inserted, report.Attempted)
	return report, nil
}

func (w *QuestionWriter) buildRows(ctx context.Context, res *DocumentResult) ([]model.Question, int, error) {
	doc := res.Document

	positionID, hasPosition := w.cache.Lookup(Positions, doc.Position)
	paperID, err := w.examPaperID(ctx, doc, positionID)
	if err != nil {
		return nil, 0, err
	}

	institutionID := w.optionalID(Institutions, doc.Institution)
	bancaID := w.optionalID(Bancas, doc.AdministeringBody)
	educationID := w.optionalID(EducationLevels, doc.EducationLevel)
	year := parseYear(doc.Year)
	examType := w.examType
	now := time.Now().UTC()

	rows := make([]model.Question, 0, len(res.Questions))
	dropped := 0

	for i := range res.Questions {
		q := &res.Questions[i]

		areaID, hasArea := w.cache.Lookup(KnowledgeAreas, q.AreaName())
		var subjectID string
		var hasSubject bool
		if hasArea {
			subjectID, hasSubject = w.cache.SubjectID(q.Subject, areaID)
		}

		var topicID, subtopicID *string
		if hasSubject && strings.TrimSpace(q.Topic) != "" {
			if id, ok := w.cache.TopicID(q.Topic, subjectID); ok {
				topicID = &id
				if strings.TrimSpace(q.Subtopic) != "" {
					if sid, ok := w.cache.SubtopicID(q.Subtopic, id); ok {
						subtopicID = &sid
					}
				}
			}
		}

		styleID, hasStyle := w.cache.Lookup(QuestionStyles, q.QuestionStyle)

		if strings.TrimSpace(q.Statement) == "" || !hasSubject || !hasStyle || !hasPosition {
			dropped++
			continue
		}

		row := model.Question{
			ID:                uuid.NewString(),
			OriginUser:        w.userID,
			SourceExamPaperID: paperID,
			SourceSequence:    q.OriginalNumber.Ptr(),
			AreaID:            &areaID,
			ExamSubjectID:     subjectID,
			ExamTopicID:       topicID,
			ExamSubtopicID:    subtopicID,
			ExamPositionID:    positionID,
			QuestionStyleID:   styleID,
			ExamInstitutionID: institutionID,
			ExamBancaID:       bancaID,
			EducationLevelID:  educationID,
			Statement:         strings.TrimSpace(q.Statement),
			ItemA:             optionalText(q.ItemA),
			ExplanationA:      optionalText(q.ExplanationA),
			ItemB:             optionalText(q.ItemB),
			ExplanationB:      optionalText(q.ExplanationB),
			ItemC:             optionalText(q.ItemC),
			ExplanationC:      optionalText(q.ExplanationC),
			ItemD:             optionalText(q.ItemD),
			ExplanationD:      optionalText(q.ExplanationD),
			ItemE:             optionalText(q.ItemE),
			ExplanationE:      optionalText(q.ExplanationE),
			ItemText:          optionalText(q.ItemText),
			ExplanationText:   optionalText(q.ExplanationText),
			CorrectOption:     strings.TrimSpace(q.CorrectOption),
			ReferenceText:     optionalText(q.ReferenceText),
			ReferenceImage:    optionalText(q.ReferenceImageDescription),
			SourceYear:        year,
			DifficultyLevel:   difficulty(q.DifficultyLevel),
			ConfidenceScore:   confidence(q.ConfidenceScore),
			ExamType:          &examType,
			CreatedAt:         now,
		}
		rows = append(rows, row)
	}

	return rows, dropped, nil
}

// examPaperID gets or creates the exam paper keyed by the booklet storage URI
func (w *QuestionWriter) examPaperID(ctx context.Context, doc Document, positionID string) (string, error) {
	if doc.BookletStorageURI == "" {
		return "", ErrNoBookletUpload
	}

	attrs := model.ExamPaper{
		ID:             uuid.NewString(),
		SourceURL:      doc.Identifier,
		YearApplied:    parseYear(doc.Year),
		Description:    optionalText(doc.DisplayName),
		AnswerKeyPath:  optionalText(doc.AnswerKeyStorageURI),
		ExamPositionID: optionalText(positionID),
		AttachmentURLs: attachmentsJSON(doc.AttachmentURLs),
	}

	var paper model.ExamPaper
	err := w.db.WithContext(ctx).
		Where(model.ExamPaper{FileStoragePath: doc.BookletStorageURI}).
		Attrs(attrs).
		FirstOrCreate(&paper).Error
	if err != nil {
		return "", fmt.Errorf("exam paper for %s: %w", doc.BookletStorageURI, err)
	}
	return paper.ID, nil
}

func (w *QuestionWriter) optionalID(kind ReferenceKind, name string) *string {
	if id, ok := w.cache.Lookup(kind, name); ok {
		return &id
	}
	return nil
}

func parseYear(raw string) *int {
	year, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	return &year
}

func optionalText(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func difficulty(level model.FlexibleInt) *int {
	if !level.Set || level.Value < 1 || level.Value > 5 {
		return nil
	}
	return level.Ptr()
}

func confidence(score *float64) *float64 {
	if score == nil || *score < 0 || *score > 1 {
		return nil
	}
	v := *score
	return &v
}

func attachmentsJSON(urls []string) datatypes.JSON {
	if len(urls) == 0 {
		return nil
	}
	data, err := json.Marshal(urls)
	if err != nil {
		return nil
	}
	return datatypes.JSON(data)
}
