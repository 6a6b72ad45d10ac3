package crawler

import "strings"

// Link is one attachment anchor on a detail page
type Link struct {
	URL  string
	Text string
}

// Classification names the primary booklet and the answer key among a page's
// links. Either may be empty.
type Classification struct {
	BookletURL   string
	AnswerKeyURL string
}

// AttachmentClassifier decides which attachment is the booklet and which the
// answer key.
type AttachmentClassifier interface {
	Classify(links []Link) Classification
}

// KeywordClassifier matches lower-cased link text and URLs against keyword lists.
type KeywordClassifier struct {
	AnswerKeyWords []string // mark a link as answer key
	BookletWords   []string // mark a link as booklet
	AncillaryWords []string // notices, results, enrolment
	FinalWord      string   // preferred answer-key revision
	DraftWord      string   // superseded answer-key revision
}

// DefaultKeywordClassifier returns the keyword set used by pciconcursos pages
func DefaultKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		AnswerKeyWords: []string{"gabarito"},
		BookletWords:   []string{"caderno", "prova"},
		AncillaryWords: []string{"edital", "resultado", "inscrições", "inscricoes"},
		FinalWord:      "definitivo",
		DraftWord:      "preliminar",
	}
}

func (k *KeywordClassifier) Classify(links []Link) Classification {
	var (
		out     Classification
		keyText string
	)

	for _, l := range links {
		txt := strings.ToLower(l.Text)
		lowerURL := strings.ToLower(l.URL)

		switch {
		case containsAny(txt, k.AnswerKeyWords) || containsAny(lowerURL, k.AnswerKeyWords):
			current := keyText + " " + strings.ToLower(out.AnswerKeyURL)
			switch {
			case out.AnswerKeyURL == "":
				out.AnswerKeyURL, keyText = l.URL, txt
			case k.FinalWord != "" && strings.Contains(txt, k.FinalWord) && !strings.Contains(current, k.FinalWord):
				out.AnswerKeyURL, keyText = l.URL, txt
			case k.DraftWord != "" && !strings.Contains(txt, k.DraftWord) && strings.Contains(current, k.DraftWord):
				out.AnswerKeyURL, keyText = l.URL, txt
			}
		case containsAny(txt, k.BookletWords) || !containsAny(txt, k.AncillaryWords):
			if out.BookletURL == "" {
				out.BookletURL = l.URL
			}
		}
	}

	if out.BookletURL != "" {
		return out
	}

	// First link that is neither an answer key nor ancillary.
	var remaining []Link
	for _, l := range links {
		lowerURL := strings.ToLower(l.URL)
		if l.URL == out.AnswerKeyURL || containsAny(lowerURL, k.AnswerKeyWords) || containsAny(strings.ToLower(l.Text), k.AnswerKeyWords) {
			continue
		}
		remaining = append(remaining, l)
		if out.BookletURL == "" && !containsAny(lowerURL, k.AncillaryWords) {
			out.BookletURL = l.URL
		}
	}

	if out.BookletURL == "" && len(remaining) == 1 {
		out.BookletURL = remaining[0].URL
	}

	return out
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(s, w) {
			return true
		}
	}
	return false
}
