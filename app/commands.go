package app

import (
	"errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/sahilchouksey/exam-harvester/api"
	"github.com/sahilchouksey/exam-harvester/services"
	"github.com/sahilchouksey/exam-harvester/services/cron"
)

var (
	runLimit       int
	runStatusAddr  string
	scheduleSpec   string
	scheduleLimit  int
	scheduleStatus string
)

var runCmd = &cobra.Command{
	Use:   "run <category-url>...",
	Short: "Harvest every exam of the given catalog categories once",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := loadEnv(true)
		if err != nil {
			return err
		}
		h, err := NewHarvest(env)
		if err != nil {
			return err
		}
		defer h.Close()

		stop := startStatusServer(runStatusAddr, h)
		defer stop()

		_, err = h.Service.Run(ctx, services.RunOptions{
			CategoryURLs: args,
			Limit:        runLimit,
			Trigger:      "manual",
		})
		return err
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule <category-url>...",
	Short: "Harvest the given categories on a cron schedule until interrupted",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := loadEnv(true)
		if err != nil {
			return err
		}
		h, err := NewHarvest(env)
		if err != nil {
			return err
		}
		defer h.Close()

		manager := cron.NewCronManager(h.Service)
		if err := manager.ScheduleHarvest(scheduleSpec, args, scheduleLimit); err != nil {
			return fmt.Errorf("invalid --cron %q: %w", scheduleSpec, err)
		}

		stop := startStatusServer(scheduleStatus, h)
		defer stop()

		manager.Start()
		<-ctx.Done()
		manager.Stop()
		return nil
	},
}

var resetFailedCmd = &cobra.Command{
	Use:   "reset-failed",
	Short: "Mark failed documents in the run ledger so the next run retries them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnv(false)
		if err != nil {
			return err
		}
		if env.REDIS_URL == "" {
			return errors.New("REDIS_URL is required to reset the run ledger")
		}

		ledger, redisCache := openLedger(env)
		if redisCache == nil {
			return errors.New("run ledger unavailable")
		}
		defer redisCache.Close()

		n, err := ledger.ResetFailed(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Reset %d failed documents\n", n)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the reference, paper, question and run tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnv(false)
		if err != nil {
			return err
		}
		store, err := openStore(env)
		if err != nil {
			return err
		}
		return store.Close()
	},
}

func init() {
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "max exams per category (0 = all)")
	runCmd.Flags().StringVar(&runStatusAddr, "status-addr", "", "serve /health and /status on this address during the run")

	scheduleCmd.Flags().StringVar(&scheduleSpec, "cron", "0 0 3 * * *", "cron schedule with seconds field")
	scheduleCmd.Flags().IntVar(&scheduleLimit, "limit", 0, "max exams per category (0 = all)")
	scheduleCmd.Flags().StringVar(&scheduleStatus, "status-addr", ":8090", "serve /health and /status on this address (empty to disable)")
}

// startStatusServer serves run status on addr in the background and returns
// its shutdown func. An empty addr disables it.
func startStatusServer(addr string, h *Harvest) func() {
	if addr == "" {
		return func() {}
	}

	server := api.NewStatusServer(addr, h.Service, h.Store)
	go func() {
		if err := server.Run(); err != nil {
			log.Printf("Status server stopped: %v", err)
		}
	}()

	return func() {
		if err := server.Shutdown(); err != nil {
			log.Printf("Status server shutdown: %v", err)
		}
	}
}
