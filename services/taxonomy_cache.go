package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sahilchouksey/exam-harvester/model"
)

// ReferenceKind is one of the flat reference tables, keyed by name alone
type ReferenceKind int

const (
	Positions ReferenceKind = iota
	Institutions
	Bancas
	EducationLevels
	KnowledgeAreas
	QuestionStyles
)

var flatKinds = []ReferenceKind{Positions, Bancas, Institutions, EducationLevels, KnowledgeAreas, QuestionStyles}

func (k ReferenceKind) String() string {
	switch k {
	case Positions:
		return "positions"
	case Institutions:
		return "institutions"
	case Bancas:
		return "bancas"
	case EducationLevels:
		return "education_levels"
	case KnowledgeAreas:
		return "areas"
	case QuestionStyles:
		return "styles"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k ReferenceKind) model() interface{} {
	switch k {
	case Positions:
		return &model.ExamPosition{}
	case Institutions:
		return &model.ExamInstitution{}
	case Bancas:
		return &model.ExamBanca{}
	case EducationLevels:
		return &model.EducationLevel{}
	case KnowledgeAreas:
		return &model.KnowledgeArea{}
	case QuestionStyles:
		return &model.QuestionStyle{}
	}
	return nil
}

const (
	lookupAttempts = 2
	lookupDelay    = 100 * time.Millisecond
)

var errRowNotVisible = errors.New("row not visible after upsert")

// childKey is a composite natural key: a name under a resolved parent id
type childKey struct {
	Name     string
	ParentID string
}

// TaxonomyCache maps reference names to ids. Populate writes the rows and must
// run from a single goroutine after all workers have finished; the lookup
// methods are read-only and safe for concurrent use.
type TaxonomyCache struct {
	db *gorm.DB

	mu        sync.RWMutex
	flat      map[ReferenceKind]map[string]string
	subjects  map[childKey]string // (name, area id)
	topics    map[childKey]string // (name, subject id)
	subtopics map[childKey]string // (name, topic id)
	failures  int
}

func NewTaxonomyCache(db *gorm.DB) *TaxonomyCache {
	c := &TaxonomyCache{
		db:        db,
		flat:      make(map[ReferenceKind]map[string]string, len(flatKinds)),
		subjects:  make(map[childKey]string),
		topics:    make(map[childKey]string),
		subtopics: make(map[childKey]string),
	}
	for _, k := range flatKinds {
		c.flat[k] = make(map[string]string)
	}
	return c
}

// Populate resolves every name in dependency order: flat tables, then
// subjects, topics and subtopics. Entities whose id cannot be obtained stay
// absent; only context cancellation aborts.
func (c *TaxonomyCache) Populate(ctx context.Context, names *TaxonomyNames) error {
	for _, kind := range flatKinds {
		set := names.flat(kind)
		log.Printf("TaxonomyCache: caching %d names for %s", len(set), kind)
		for _, name := range sortedKeys(set) {
			if err := ctx.Err(); err != nil {
				return err
			}
			c.Resolve(ctx, kind, name)
		}
	}

	log.Printf("TaxonomyCache: caching %d subjects", len(names.Subjects))
	for _, key := range sortedSubjects(names.Subjects) {
		if err := ctx.Err(); err != nil {
			return err
		}
		areaID, ok := c.Lookup(KnowledgeAreas, key.Area)
		if !ok {
			continue
		}
		c.ResolveSubject(ctx, key.Name, areaID)
	}

	log.Printf("TaxonomyCache: caching %d topics", len(names.Topics))
	for _, key := range sortedTopics(names.Topics) {
		if err := ctx.Err(); err != nil {
			return err
		}
		subjectID, ok := c.subjectIDByNames(key.Subject, key.Area)
		if !ok {
			continue
		}
		c.ResolveTopic(ctx, key.Name, subjectID)
	}

	log.Printf("TaxonomyCache: caching %d subtopics", len(names.Subtopics))
	for _, key := range sortedSubtopics(names.Subtopics) {
		if err := ctx.Err(); err != nil {
			return err
		}
		subjectID, ok := c.subjectIDByNames(key.Subject, key.Area)
		if !ok {
			continue
		}
		topicID, ok := c.TopicID(key.Topic, subjectID)
		if !ok {
			continue
		}
		c.ResolveSubtopic(ctx, key.Name, topicID)
	}

	if f := c.Failures(); f > 0 {
		log.Printf("TaxonomyCache: %d entities could not be resolved", f)
	}
	return nil
}

// Resolve gets or creates the flat reference row for name
func (c *TaxonomyCache) Resolve(ctx context.Context, kind ReferenceKind, name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	if id, ok := c.Lookup(kind, name); ok {
		return id, true
	}

	id, ok := c.upsertThenRead(ctx, kind.model(), name, "", "")
	if ok {
		c.mu.Lock()
		c.flat[kind][name] = id
		c.mu.Unlock()
	}
	return id, ok
}

// ResolveSubject gets or creates the subject keyed by (name, areaID)
func (c *TaxonomyCache) ResolveSubject(ctx context.Context, name, areaID string) (string, bool) {
	return c.resolveChild(ctx, &model.ExamSubject{}, "exam_area_id", c.subjects, name, areaID)
}

// ResolveTopic gets or creates the topic keyed by (name, subjectID)
func (c *TaxonomyCache) ResolveTopic(ctx context.Context, name, subjectID string) (string, bool) {
	return c.resolveChild(ctx, &model.ExamTopic{}, "exam_subject_id", c.topics, name, subjectID)
}

// ResolveSubtopic gets or creates the subtopic keyed by (name, topicID)
func (c *TaxonomyCache) ResolveSubtopic(ctx context.Context, name, topicID string) (string, bool) {
	return c.resolveChild(ctx, &model.ExamSubtopic{}, "exam_topic_id", c.subtopics, name, topicID)
}

func (c *TaxonomyCache) resolveChild(ctx context.Context, m interface{}, parentColumn string, memo map[childKey]string, name, parentID string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || parentID == "" {
		return "", false
	}
	key := childKey{Name: name, ParentID: parentID}

	c.mu.RLock()
	id, ok := memo[key]
	c.mu.RUnlock()
	if ok {
		return id, true
	}

	id, ok = c.upsertThenRead(ctx, m, name, parentColumn, parentID)
	if ok {
		c.mu.Lock()
		memo[key] = id
		c.mu.Unlock()
	}
	return id, ok
}

// upsertThenRead inserts (name[, parent]) with ON CONFLICT DO NOTHING and then
// selects the id by the same natural key, retrying the select once.
func (c *TaxonomyCache) upsertThenRead(ctx context.Context, m interface{}, name, parentColumn, parentID string) (string, bool) {
	row := map[string]interface{}{
		"id":         uuid.NewString(),
		"name":       name,
		"created_at": time.Now().UTC(),
	}
	conflict := []clause.Column{{Name: "name"}}
	if parentColumn != "" {
		row[parentColumn] = parentID
		conflict = append(conflict, clause.Column{Name: parentColumn})
	}

	db := c.db.WithContext(ctx)
	if err := db.Model(m).Clauses(clause.OnConflict{Columns: conflict, DoNothing: true}).Create(row).Error; err != nil {
		log.Printf("TaxonomyCache: upsert failed for %q: %v", name, err)
		c.recordFailure()
		return "", false
	}

	var id string
	err := retry.Do(
		func() error {
			query := db.Model(m).Where(pq.QuoteIdentifier("name")+" = ?", name)
			if parentColumn != "" {
				query = query.Where(pq.QuoteIdentifier(parentColumn)+" = ?", parentID)
			}
			var ids []string
			if err := query.Limit(1).Pluck("id", &ids).Error; err != nil {
				return retry.Unrecoverable(err)
			}
			if len(ids) == 0 {
				return errRowNotVisible
			}
			id = ids[0]
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(lookupAttempts),
		retry.Delay(lookupDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		log.Printf("TaxonomyCache: could not obtain id for %q after upsert: %v", name, err)
		c.recordFailure()
		return "", false
	}
	return id, true
}

// Lookup returns the cached id of a flat reference name without touching the database
func (c *TaxonomyCache) Lookup(kind ReferenceKind, name string) (string, bool) {
	name = strings.TrimSpace(name)
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.flat[kind][name]
	return id, ok
}

// SubjectID returns the cached id of subject name under areaID
func (c *TaxonomyCache) SubjectID(name, areaID string) (string, bool) {
	return c.lookupChild(c.subjects, name, areaID)
}

// TopicID returns the cached id of topic name under subjectID
func (c *TaxonomyCache) TopicID(name, subjectID string) (string, bool) {
	return c.lookupChild(c.topics, name, subjectID)
}

// SubtopicID returns the cached id of subtopic name under topicID
func (c *TaxonomyCache) SubtopicID(name, topicID string) (string, bool) {
	return c.lookupChild(c.subtopics, name, topicID)
}

func (c *TaxonomyCache) lookupChild(memo map[childKey]string, name, parentID string) (string, bool) {
	if parentID == "" {
		return "", false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := memo[childKey{Name: strings.TrimSpace(name), ParentID: parentID}]
	return id, ok
}

func (c *TaxonomyCache) subjectIDByNames(subject, area string) (string, bool) {
	areaID, ok := c.Lookup(KnowledgeAreas, area)
	if !ok {
		return "", false
	}
	return c.SubjectID(subject, areaID)
}

// Failures counts entities that resolved to absent
func (c *TaxonomyCache) Failures() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.failures
}

func (c *TaxonomyCache) recordFailure() {
	c.mu.Lock()
	c.failures++
	c.mu.Unlock()
}
