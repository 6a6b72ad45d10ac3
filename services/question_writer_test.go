package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahilchouksey/exam-harvester/model"
	"github.com/sahilchouksey/exam-harvester/services/crawler"
)

const testSystemUser = "4b6f1c2e-8f0a-4a57-9a53-0d5f1d2c9e11"

func writerFixture(bookletURI string, questions ...model.QuestionExtraction) *DocumentResult {
	return &DocumentResult{
		Document: Document{
			CatalogEntry: crawler.CatalogEntry{
				Identifier:        "https://www.pciconcursos.com.br/provas/download/agente-2023",
				DisplayName:       "Agente de Polícia",
				Position:          "Agente de Polícia",
				Year:              "2023",
				Institution:       "Polícia Civil - SP",
				AdministeringBody: "VUNESP",
				EducationLevel:    "Superior",
			},
			AttachmentURLs:      []string{"https://example.com/prova.pdf", "https://example.com/gabarito.pdf"},
			BookletStorageURI:   bookletURI,
			AnswerKeyStorageURI: "https://bucket.example.com/gabarito.pdf",
		},
		Questions: questions,
	}
}

func populatedWriter(t *testing.T, results []*DocumentResult) (*QuestionWriter, *TaxonomyCache) {
	t.Helper()
	db := newTestDB(t)
	cache := NewTaxonomyCache(db)
	require.NoError(t, cache.Populate(context.Background(), CollectTaxonomyNames(results)))

	writer, err := NewQuestionWriter(db, cache, QuestionWriterConfig{SystemUserID: testSystemUser, BatchSize: 2})
	require.NoError(t, err)
	return writer, cache
}

func TestWriteInsertsResolvedRows(t *testing.T) {
	results := []*DocumentResult{
		writerFixture("https://bucket.example.com/prova.pdf",
			question(1, "Português", model.StyleFiveOptions),
			question(2, "Português", model.StyleFiveOptions),
			question(3, "Português", model.StyleFiveOptions),
		),
	}
	writer, cache := populatedWriter(t, results)

	report, err := writer.Write(context.Background(), results)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 3, report.Inserted)

	var rows []model.Question
	require.NoError(t, writer.db.Order("source_sequence").Find(&rows).Error)
	require.Len(t, rows, 3)

	areaID, _ := cache.Lookup(KnowledgeAreas, "Linguagens")
	subjectID, _ := cache.SubjectID("Português", areaID)
	topicID, _ := cache.TopicID("Crase", subjectID)

	row := rows[0]
	assert.Equal(t, testSystemUser, row.OriginUser)
	assert.Equal(t, subjectID, row.ExamSubjectID)
	require.NotNil(t, row.AreaID)
	assert.Equal(t, areaID, *row.AreaID)
	require.NotNil(t, row.ExamTopicID)
	assert.Equal(t, topicID, *row.ExamTopicID)
	assert.Nil(t, row.ExamSubtopicID)
	assert.Nil(t, row.ItemC)
	require.NotNil(t, row.SourceYear)
	assert.Equal(t, 2023, *row.SourceYear)
	require.NotNil(t, row.ExamType)
	assert.Equal(t, DefaultExamType, *row.ExamType)
	assert.NotNil(t, row.ExamBancaID)
	assert.NotNil(t, row.ExamInstitutionID)
	assert.NotNil(t, row.EducationLevelID)
}

func TestWriteDropsRowsMissingSubjectOrStyle(t *testing.T) {
	noSubject := question(2, "", model.StyleFiveOptions)
	noStyle := question(3, "Português", "")
	noStatement := question(4, "Português", model.StyleFiveOptions)
	noStatement.Statement = "  "

	results := []*DocumentResult{
		writerFixture("https://bucket.example.com/prova.pdf",
			question(1, "Português", model.StyleFiveOptions),
			noSubject,
			noStyle,
			noStatement,
		),
	}
	writer, _ := populatedWriter(t, results)

	report, err := writer.Write(context.Background(), results)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Attempted)
	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 3, report.DroppedRecords)
}

func TestWriteDropsRowsWithoutPosition(t *testing.T) {
	res := writerFixture("https://bucket.example.com/prova.pdf", question(1, "Português", model.StyleFiveOptions))
	res.Document.Position = ""
	results := []*DocumentResult{res}
	writer, _ := populatedWriter(t, results)

	report, err := writer.Write(context.Background(), results)
	require.NoError(t, err)
	assert.Zero(t, report.Attempted)
	assert.Equal(t, 1, report.DroppedRecords)
}

func TestExamPaperGetOrCreate(t *testing.T) {
	uri := "https://bucket.example.com/prova.pdf"
	first := writerFixture(uri, question(1, "Português", model.StyleFiveOptions))
	second := writerFixture(uri, question(2, "Português", model.StyleFiveOptions))
	second.Document.Year = "s/d"
	results := []*DocumentResult{first, second}

	writer, _ := populatedWriter(t, results)

	report, err := writer.Write(context.Background(), results)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Inserted)
	assert.Equal(t, 2, report.Committed[first.Document.Identifier])

	var papers []model.ExamPaper
	require.NoError(t, writer.db.Find(&papers).Error)
	require.Len(t, papers, 1)
	assert.Equal(t, uri, papers[0].FileStoragePath)
	require.NotNil(t, papers[0].YearApplied)
	assert.Equal(t, 2023, *papers[0].YearApplied)
	assert.Contains(t, string(papers[0].AttachmentURLs), "gabarito.pdf")

	var rows []model.Question
	require.NoError(t, writer.db.Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, rows[0].SourceExamPaperID, rows[1].SourceExamPaperID)
	assert.Equal(t, papers[0].ID, rows[0].SourceExamPaperID)
}

func TestWriteFailureInLaterBatchInsertsNothing(t *testing.T) {
	results := []*DocumentResult{
		writerFixture("https://bucket.example.com/prova.pdf",
			question(1, "Português", model.StyleFiveOptions),
			question(2, "Português", model.StyleFiveOptions),
			question(3, "Português", model.StyleFiveOptions),
		),
	}
	writer, _ := populatedWriter(t, results)
	require.NoError(t, writer.db.Exec(`CREATE TRIGGER reject_third_question BEFORE INSERT ON questions
		WHEN NEW.source_sequence = 3
		BEGIN SELECT RAISE(ABORT, 'rejected'); END`).Error)

	report, err := writer.Write(context.Background(), results)
	require.Error(t, err)
	assert.Equal(t, 3, report.Attempted)
	assert.Zero(t, report.Inserted)
	assert.Empty(t, report.Committed)
	assert.EqualValues(t, 0, countRows(t, writer.db, &model.Question{}))
}

func TestWriteSkipsDocumentsWithoutBooklet(t *testing.T) {
	results := []*DocumentResult{writerFixture("", question(1, "Português", model.StyleFiveOptions))}
	writer, _ := populatedWriter(t, results)

	report, err := writer.Write(context.Background(), results)
	require.NoError(t, err)
	assert.Equal(t, 1, report.SkippedPapers)
	assert.Zero(t, report.Attempted)
}

func TestNewQuestionWriterRequiresSystemUser(t *testing.T) {
	_, err := NewQuestionWriter(nil, nil, QuestionWriterConfig{})
	assert.Error(t, err)
}

func TestParseYear(t *testing.T) {
	tests := []struct {
		raw  string
		want *int
	}{
		{"2023", intPtr(2023)},
		{" 2019 ", intPtr(2019)},
		{"s/d", nil},
		{"", nil},
	}
	for _, tt := range tests {
		got := parseYear(tt.raw)
		assert.Equal(t, tt.want, got, "parseYear(%q)", tt.raw)
	}
}

func intPtr(v int) *int { return &v }
