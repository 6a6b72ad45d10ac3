package api

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/sahilchouksey/exam-harvester/services"
	"github.com/sahilchouksey/exam-harvester/utils/response"
)

// RunSource exposes the live counters of the harvest service
type RunSource interface {
	Current() *services.HarvestStats
	Running() bool
}

// HealthChecker reports whether the database is reachable
type HealthChecker interface {
	HealthCheck() error
}

// StatusServer serves /health and /status while a harvest runs
type StatusServer struct {
	app           *fiber.App
	listenAddress string
	runs          RunSource
	store         HealthChecker
}

func NewStatusServer(listenAddress string, runs RunSource, store HealthChecker) *StatusServer {
	s := &StatusServer{
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
		}),
		listenAddress: listenAddress,
		runs:          runs,
		store:         store,
	}

	s.app.Use(recover.New())
	s.app.Get("/health", s.handleHealth)
	s.app.Get("/status", s.handleStatus)

	return s
}

func (s *StatusServer) GetEngine() *fiber.App {
	return s.app
}

// Run blocks until Shutdown
func (s *StatusServer) Run() error {
	log.Printf("Status server listening on %s", s.listenAddress)
	return s.app.Listen(s.listenAddress)
}

func (s *StatusServer) Shutdown() error {
	return s.app.Shutdown()
}

func (s *StatusServer) handleHealth(c *fiber.Ctx) error {
	if s.store != nil {
		if err := s.store.HealthCheck(); err != nil {
			return response.ErrorWithDetails(c, fiber.StatusServiceUnavailable, "database unreachable", "DB_UNAVAILABLE", err.Error())
		}
	}
	return response.Success(c, fiber.Map{"status": "ok"})
}

func (s *StatusServer) handleStatus(c *fiber.Ctx) error {
	stats := s.runs.Current()
	if stats == nil {
		return response.SuccessWithMessage(c, "no run started yet", fiber.Map{"running": false})
	}
	return response.Success(c, fiber.Map{
		"running": s.runs.Running(),
		"run":     stats.Snapshot(),
	})
}
