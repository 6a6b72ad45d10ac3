package jsonrecovery

import (
	"fmt"
	"strings"
	"testing"
)

type testQuestion struct {
	Statement     string `json:"statement"`
	CorrectOption string `json:"correct_option"`
	Subject       string `json:"subject"`
}

func questionObject(n int) string {
	return fmt.Sprintf(`{"statement": "Enunciado %d", "correct_option": "A", "subject": "Matemática"}`, n)
}

func TestRecoverWellFormedAndMalformedInterleaved(t *testing.T) {
	schema, err := RequiredFieldsSchema("statement", "correct_option")
	if err != nil {
		t.Fatalf("RequiredFieldsSchema() error = %v", err)
	}

	malformed := []string{
		`{"statement": "broken", "correct_option": }`,
		`{statement: 'single quotes'}`,
		`{"statement": "trailing comma", "correct_option": "B",}`,
	}

	var parts []string
	for i := 0; i < 5; i++ {
		parts = append(parts, questionObject(i+1))
		if i < len(malformed) {
			parts = append(parts, malformed[i])
		}
	}
	text := `{"exam": "x", "questions": [` + strings.Join(parts, ",") + `]}`

	res := Recover[testQuestion](text, "questions", schema)

	if res.Found != 8 {
		t.Errorf("Found = %d, want 8", res.Found)
	}
	if res.Valid != 5 {
		t.Errorf("Valid = %d, want 5", res.Valid)
	}
	if len(res.Objects) != 5 {
		t.Fatalf("len(Objects) = %d, want 5", len(res.Objects))
	}
	if res.Objects[4].Statement != "Enunciado 5" {
		t.Errorf("last statement = %q", res.Objects[4].Statement)
	}
}

func TestRecoverNeverPanics(t *testing.T) {
	schema, err := RequiredFieldsSchema("statement", "correct_option")
	if err != nil {
		t.Fatalf("RequiredFieldsSchema() error = %v", err)
	}

	tests := []struct {
		name      string
		text      string
		wantFound int
	}{
		{name: "empty string", text: "", wantFound: 0},
		{name: "missing list key", text: `{"items": [{"statement": "a", "correct_option": "A"}]}`, wantFound: 0},
		{name: "prose only", text: "I could not read the document.", wantFound: 0},
		{name: "unterminated braces", text: `{"questions": [{"statement": {{{`, wantFound: 1},
		{name: "only closing braces", text: `{"questions": [}}}}]`, wantFound: 0},
		{name: "empty list", text: `{"questions": []}`, wantFound: 0},
		{name: "key without list", text: `{"questions": "none"}`, wantFound: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Recover[testQuestion](tt.text, "questions", schema)
			if res.Found != tt.wantFound {
				t.Errorf("Found = %d, want %d", res.Found, tt.wantFound)
			}
			if res.Valid != 0 || len(res.Objects) != 0 {
				t.Errorf("expected no valid objects, got %d", res.Valid)
			}
		})
	}
}

func TestRecoverTruncatedOutput(t *testing.T) {
	schema, err := RequiredFieldsSchema("statement", "correct_option")
	if err != nil {
		t.Fatalf("RequiredFieldsSchema() error = %v", err)
	}

	text := "```json\n{\"questions\": [" + questionObject(11) + `, {"statement": "Enunciado 12", "correct_opt`

	res := Recover[testQuestion](text, "questions", schema)

	if res.Found != 2 {
		t.Errorf("Found = %d, want 2 (one complete, one cut off)", res.Found)
	}
	if res.Valid != 1 {
		t.Errorf("Valid = %d, want 1", res.Valid)
	}
}

func TestRecoverDropsRecordsMissingRequiredFields(t *testing.T) {
	schema, err := RequiredFieldsSchema("statement", "correct_option")
	if err != nil {
		t.Fatalf("RequiredFieldsSchema() error = %v", err)
	}

	text := `{"questions": [
		{"statement": "ok", "correct_option": "C"},
		{"statement": "", "correct_option": "C"},
		{"statement": "no answer", "correct_option": "   "},
		{"statement": "null answer", "correct_option": null},
		{"correct_option": "D"}
	]}`

	res := Recover[testQuestion](text, "questions", schema)

	if res.Found != 5 {
		t.Errorf("Found = %d, want 5", res.Found)
	}
	if res.Valid != 1 {
		t.Errorf("Valid = %d, want 1", res.Valid)
	}
}

func TestCandidatesIgnoreBracesInsideStrings(t *testing.T) {
	text := `{"questions": [{"statement": "Resolva {x | x > 2} e ]", "correct_option": "E"}, {"statement": "b", "correct_option": "A"}]}`

	got := Candidates(text, "questions")
	if len(got) != 2 {
		t.Fatalf("len(Candidates) = %d, want 2: %v", len(got), got)
	}
	if !strings.Contains(got[0], "{x | x > 2}") {
		t.Errorf("first candidate lost string content: %s", got[0])
	}
}

func TestCandidatesStopAtEndOfList(t *testing.T) {
	text := `{"questions": [{"statement": "a"}], "other": [{"statement": "not mine"}]}`

	got := Candidates(text, "questions")
	if len(got) != 1 {
		t.Fatalf("len(Candidates) = %d, want 1", len(got))
	}
}

func TestRecoverWithoutSchemaKeepsDecodableObjects(t *testing.T) {
	text := `noise before {"questions": [{"statement": ""}, {"subject": "x"}]} noise after`

	res := Recover[testQuestion](text, "questions", nil)
	if res.Found != 2 || res.Valid != 2 {
		t.Errorf("Found/Valid = %d/%d, want 2/2", res.Found, res.Valid)
	}
}
