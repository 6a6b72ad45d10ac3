package cron

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sahilchouksey/exam-harvester/services"
)

// Harvester runs one harvest
type Harvester interface {
	Run(ctx context.Context, opts services.RunOptions) (services.StatsSnapshot, error)
}

// CronManager schedules harvest runs
type CronManager struct {
	cron      *cron.Cron
	harvester Harvester

	// cancelled by Stop so a running harvest returns promptly
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCronManager creates a cron manager with seconds precision. A tick that
// fires while the previous run is still going is skipped.
func NewCronManager(harvester Harvester) *CronManager {
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	return &CronManager{
		cron:      c,
		harvester: harvester,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// ScheduleHarvest registers a harvest of categoryURLs on spec
func (m *CronManager) ScheduleHarvest(spec string, categoryURLs []string, limit int) error {
	opts := services.RunOptions{
		CategoryURLs: categoryURLs,
		Limit:        limit,
		Trigger:      "cron",
	}

	_, err := m.cron.AddFunc(spec, func() {
		m.runHarvest(opts)
	})
	if err != nil {
		return err
	}

	log.Printf("[CRON] Harvest of %d categories scheduled with %q", len(categoryURLs), spec)
	return nil
}

// Start starts the scheduler
func (m *CronManager) Start() {
	log.Println("Starting cron jobs...")
	m.cron.Start()
	for _, e := range m.cron.Entries() {
		log.Printf("[CRON] Next harvest at %s", e.Next.Format(time.RFC3339))
	}
}

// Stop cancels a running harvest and waits for it to return
func (m *CronManager) Stop() {
	log.Println("Stopping cron jobs...")
	m.cancel()
	ctx := m.cron.Stop()
	<-ctx.Done()
	log.Println("Cron jobs stopped")
}

func (m *CronManager) runHarvest(opts services.RunOptions) {
	jobName := "harvest"
	m.logJobStart(jobName)

	snap, err := m.harvester.Run(m.ctx, opts)
	if err != nil {
		if errors.Is(err, services.ErrRunInProgress) {
			log.Printf("[CRON] Skipping %s: a run is already in progress", jobName)
			return
		}
		m.logJobError(jobName, err)
		return
	}
	m.logJobComplete(jobName, snap)
}

func (m *CronManager) logJobStart(jobName string) {
	log.Printf("[CRON] Starting job: %s at %s", jobName, time.Now().Format(time.RFC3339))
}

func (m *CronManager) logJobComplete(jobName string, snap services.StatsSnapshot) {
	log.Printf("[CRON] Completed job: %s - run %s, %d documents, %d questions inserted",
		jobName, snap.RunID, snap.DocumentsProcessed, snap.QuestionsInserted)
}

func (m *CronManager) logJobError(jobName string, err error) {
	log.Printf("[CRON] Error in job: %s - %v", jobName, err)
}
