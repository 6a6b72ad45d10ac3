package services

import (
	"sort"
	"strings"
)

// SubjectName identifies a subject by its own and its area's names
type SubjectName struct {
	Name string
	Area string
}

// TopicName carries the full chain so the parent subject is unambiguous
type TopicName struct {
	Name    string
	Subject string
	Area    string
}

// SubtopicName carries the full chain up to the area
type SubtopicName struct {
	Name    string
	Topic   string
	Subject string
	Area    string
}

// TaxonomyNames is the set of distinct reference names seen in a run
type TaxonomyNames struct {
	Positions       map[string]struct{}
	Institutions    map[string]struct{}
	Bancas          map[string]struct{}
	EducationLevels map[string]struct{}
	Areas           map[string]struct{}
	Styles          map[string]struct{}
	Subjects        map[SubjectName]struct{}
	Topics          map[TopicName]struct{}
	Subtopics       map[SubtopicName]struct{}
}

func NewTaxonomyNames() *TaxonomyNames {
	return &TaxonomyNames{
		Positions:       make(map[string]struct{}),
		Institutions:    make(map[string]struct{}),
		Bancas:          make(map[string]struct{}),
		EducationLevels: make(map[string]struct{}),
		Areas:           make(map[string]struct{}),
		Styles:          make(map[string]struct{}),
		Subjects:        make(map[SubjectName]struct{}),
		Topics:          make(map[TopicName]struct{}),
		Subtopics:       make(map[SubtopicName]struct{}),
	}
}

// CollectTaxonomyNames gathers every name the writer will later look up.
func CollectTaxonomyNames(results []*DocumentResult) *TaxonomyNames {
	names := NewTaxonomyNames()

	for _, res := range results {
		if res == nil {
			continue
		}
		doc := res.Document
		addName(names.Positions, doc.Position)
		addName(names.Institutions, doc.Institution)
		addName(names.Bancas, doc.AdministeringBody)
		addName(names.EducationLevels, doc.EducationLevel)

		for i := range res.Questions {
			q := &res.Questions[i]
			area := q.AreaName()
			subject := strings.TrimSpace(q.Subject)
			topic := strings.TrimSpace(q.Topic)
			subtopic := strings.TrimSpace(q.Subtopic)

			addName(names.Areas, area)
			addName(names.Styles, q.QuestionStyle)

			if subject == "" {
				continue
			}
			names.Subjects[SubjectName{Name: subject, Area: area}] = struct{}{}

			if topic == "" {
				continue
			}
			names.Topics[TopicName{Name: topic, Subject: subject, Area: area}] = struct{}{}

			if subtopic != "" {
				names.Subtopics[SubtopicName{Name: subtopic, Topic: topic, Subject: subject, Area: area}] = struct{}{}
			}
		}
	}

	return names
}

func (n *TaxonomyNames) flat(kind ReferenceKind) map[string]struct{} {
	switch kind {
	case Positions:
		return n.Positions
	case Institutions:
		return n.Institutions
	case Bancas:
		return n.Bancas
	case EducationLevels:
		return n.EducationLevels
	case KnowledgeAreas:
		return n.Areas
	case QuestionStyles:
		return n.Styles
	}
	return nil
}

func addName(set map[string]struct{}, name string) {
	if name = strings.TrimSpace(name); name != "" {
		set[name] = struct{}{}
	}
}

// Sorted iteration keeps runs reproducible and logs readable.

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedSubjects(set map[SubjectName]struct{}) []SubjectName {
	out := make([]SubjectName, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Area != out[j].Area {
			return out[i].Area < out[j].Area
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func sortedTopics(set map[TopicName]struct{}) []TopicName {
	out := make([]TopicName, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Area != b.Area {
			return a.Area < b.Area
		}
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		return a.Name < b.Name
	})
	return out
}

func sortedSubtopics(set map[SubtopicName]struct{}) []SubtopicName {
	out := make([]SubtopicName, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Area != b.Area {
			return a.Area < b.Area
		}
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		if a.Topic != b.Topic {
			return a.Topic < b.Topic
		}
		return a.Name < b.Name
	})
	return out
}
