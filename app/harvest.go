package app

import (
	"fmt"
	"log"
	"time"

	"github.com/sahilchouksey/exam-harvester/config"
	"github.com/sahilchouksey/exam-harvester/database"
	"github.com/sahilchouksey/exam-harvester/services"
	"github.com/sahilchouksey/exam-harvester/services/crawler"
	"github.com/sahilchouksey/exam-harvester/services/digitalocean"
	"github.com/sahilchouksey/exam-harvester/utils"
	"github.com/sahilchouksey/exam-harvester/utils/cache"
)

// Harvest holds everything a harvest run needs. Close releases it.
type Harvest struct {
	Env     *config.EnvironmentVariable
	Store   *database.GORMStore
	Service *services.HarvestService

	redis    *cache.RedisCache
	failures *utils.Logger
}

// loadEnv loads and, when strict, validates the environment
func loadEnv(strict bool) (*config.EnvironmentVariable, error) {
	if err := config.LoadENV(); err != nil {
		return nil, err
	}
	env, err := config.Get()
	if err != nil {
		return nil, err
	}
	if strict {
		if err := env.Validate(); err != nil {
			return nil, err
		}
	}
	return env, nil
}

// openStore connects to PostgreSQL and migrates the harvest tables
func openStore(env *config.EnvironmentVariable) (*database.GORMStore, error) {
	store, err := database.StartGORM(env)
	if err != nil {
		log.Println("Check whether PostgreSQL is running and the DB_* variables are correct")
		return nil, err
	}
	if err := store.Init(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to migrate harvest tables: %w", err)
	}
	return store, nil
}

// openLedger connects to Redis when REDIS_URL is set. Without it every
// document is processed on every run.
func openLedger(env *config.EnvironmentVariable) (services.RunLedger, *cache.RedisCache) {
	if env.REDIS_URL == "" {
		log.Println("Ledger: REDIS_URL not set, documents will not be skipped across runs")
		return services.NewRunLedger(nil), nil
	}
	redisCache, err := cache.NewRedisCache(env.REDIS_URL)
	if err != nil {
		log.Printf("Ledger: Redis unavailable (%v), continuing without a run ledger", err)
		return services.NewRunLedger(nil), nil
	}
	return services.NewRunLedger(redisCache), redisCache
}

// NewHarvest builds the full pipeline from env
func NewHarvest(env *config.EnvironmentVariable) (*Harvest, error) {
	store, err := openStore(env)
	if err != nil {
		return nil, err
	}

	h := &Harvest{Env: env, Store: store}
	ok := false
	defer func() {
		if !ok {
			h.Close()
		}
	}()

	spaces, err := digitalocean.NewSpacesClient(digitalocean.SpacesConfig{
		AccessKey: env.DO_SPACES_ACCESS_KEY,
		SecretKey: env.DO_SPACES_SECRET_KEY,
		Bucket:    env.DO_SPACES_BUCKET,
		Region:    env.DO_SPACES_REGION,
		Endpoint:  env.DO_SPACES_ENDPOINT,
		CDNURL:    env.DO_SPACES_CDN_ENDPOINT,
	})
	if err != nil {
		return nil, err
	}

	texts := services.NewAttachmentTexts(spaces, services.NewPDFExtractor())

	inference, err := digitalocean.NewInferenceClient(digitalocean.InferenceConfig{
		APIKey:  env.MODEL_ACCESS_KEY,
		BaseURL: env.INFERENCE_BASE_URL,
		Model:   env.INFERENCE_MODEL,
		Texts:   texts,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("Inference: using model %s", inference.Model())

	analyzer, err := services.NewBatchAnalyzer(inference, services.BatchAnalyzerConfig{
		WindowSize: env.HARVEST_WINDOW_SIZE,
		Pause:      env.HARVEST_WINDOW_PAUSE,
		MaxWindows: env.HARVEST_MAX_WINDOWS,
	})
	if err != nil {
		return nil, err
	}

	catalog, err := crawler.NewPCICrawler(crawler.Config{
		PageDelay: 500 * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}

	worker := services.NewDocumentWorker(services.DocumentWorkerConfig{
		Resolver:    catalog,
		Downloader:  services.NewHTTPDownloader(0, crawler.DefaultUserAgent),
		Store:       spaces,
		Analyzer:    analyzer,
		Texts:       texts,
		DownloadDir: env.HARVEST_DOWNLOAD_DIR,
		KeepPartial: env.HARVEST_KEEP_PARTIAL,
	})

	ledger, redisCache := openLedger(env)
	h.redis = redisCache

	var failures services.FailureLog
	if env.HARVEST_FAILURE_LOG != "" {
		h.failures, err = utils.NewLogger(env.HARVEST_FAILURE_LOG)
		if err != nil {
			return nil, err
		}
		failures = h.failures
	}

	h.Service = services.NewHarvestService(services.HarvestServiceConfig{
		DB:        store.GetDB(),
		Catalog:   catalog,
		Processor: worker,
		Ledger:    ledger,
		Failures:  failures,
		Writer: services.QuestionWriterConfig{
			SystemUserID: env.SYSTEM_USER_ID_FOR_QUESTIONS,
			BatchSize:    env.HARVEST_INSERT_BATCH,
		},
		Workers: env.HARVEST_WORKERS,
	})

	ok = true
	return h, nil
}

// Close releases the database, Redis and failure log
func (h *Harvest) Close() {
	if h.failures != nil {
		h.failures.Close()
	}
	if h.redis != nil {
		h.redis.Close()
	}
	if h.Store != nil {
		h.Store.Close()
	}
}
