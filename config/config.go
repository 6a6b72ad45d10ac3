package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// LoadENV loads variables from .env when GO_ENV is unset or "development".
// A missing .env file is not an error; the variables may come from the process environment.
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	return nil
}

type EnvironmentVariable struct {
	GO_ENV string

	// Database
	DB_USER_NAME string `validate:"required"`
	DB_PASSWORD  string
	DB_NAME      string `validate:"required"`
	DB_HOST      string
	DB_PORT      string
	DB_SSL_MODE  string

	// Object storage (DigitalOcean Spaces, S3 API)
	DO_SPACES_ACCESS_KEY   string `validate:"required"`
	DO_SPACES_SECRET_KEY   string `validate:"required"`
	DO_SPACES_BUCKET       string `validate:"required"`
	DO_SPACES_REGION       string `validate:"required"`
	DO_SPACES_ENDPOINT     string
	DO_SPACES_CDN_ENDPOINT string

	// Analysis service
	MODEL_ACCESS_KEY   string `validate:"required"`
	INFERENCE_BASE_URL string `validate:"omitempty,url"`
	INFERENCE_MODEL    string

	// Question authoring
	SYSTEM_USER_ID_FOR_QUESTIONS string `validate:"required,uuid"`

	// Harvest tuning
	HARVEST_WORKERS      int           `validate:"gte=1"`
	HARVEST_WINDOW_SIZE  int           `validate:"gte=1"`
	HARVEST_WINDOW_PAUSE time.Duration `validate:"gte=0"`
	HARVEST_MAX_WINDOWS  int           `validate:"gte=1"`
	HARVEST_KEEP_PARTIAL bool
	HARVEST_DOWNLOAD_DIR string `validate:"required"`
	HARVEST_INSERT_BATCH int    `validate:"gte=1"`
	HARVEST_FAILURE_LOG  string

	// Run ledger
	REDIS_URL string
}

func Get() (*EnvironmentVariable, error) {
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}

	dbPort := os.Getenv("DB_PORT")
	if dbPort == "" {
		dbPort = "5432"
	}

	sslMode := os.Getenv("DB_SSL_MODE")
	if sslMode == "" {
		sslMode = "disable"
	}

	workers, err := intEnv("HARVEST_WORKERS", 80)
	if err != nil {
		return nil, err
	}
	windowSize, err := intEnv("HARVEST_WINDOW_SIZE", 10)
	if err != nil {
		return nil, err
	}
	maxWindows, err := intEnv("HARVEST_MAX_WINDOWS", 30)
	if err != nil {
		return nil, err
	}
	insertBatch, err := intEnv("HARVEST_INSERT_BATCH", 500)
	if err != nil {
		return nil, err
	}
	pause, err := durationEnv("HARVEST_WINDOW_PAUSE", 3*time.Second)
	if err != nil {
		return nil, err
	}
	keepPartial, err := boolEnv("HARVEST_KEEP_PARTIAL", true)
	if err != nil {
		return nil, err
	}

	downloadDir := os.Getenv("HARVEST_DOWNLOAD_DIR")
	if downloadDir == "" {
		downloadDir = "output_scraper/downloaded_pdfs"
	}

	failureLog := os.Getenv("HARVEST_FAILURE_LOG")
	if failureLog == "" {
		failureLog = "harvest_failures.log"
	}

	region := os.Getenv("DO_SPACES_REGION")
	endpoint := os.Getenv("DO_SPACES_ENDPOINT")
	if endpoint == "" && region != "" {
		endpoint = fmt.Sprintf("%s.digitaloceanspaces.com", region)
	}

	envVariables := &EnvironmentVariable{
		GO_ENV:       os.Getenv("GO_ENV"),
		DB_USER_NAME: os.Getenv("DB_USER_NAME"),
		DB_PASSWORD:  os.Getenv("DB_PASSWORD"),
		DB_NAME:      os.Getenv("DB_NAME"),
		DB_HOST:      dbHost,
		DB_PORT:      dbPort,
		DB_SSL_MODE:  sslMode,
		// Spaces
		DO_SPACES_ACCESS_KEY:   os.Getenv("DO_SPACES_ACCESS_KEY"),
		DO_SPACES_SECRET_KEY:   os.Getenv("DO_SPACES_SECRET_KEY"),
		DO_SPACES_BUCKET:       os.Getenv("DO_SPACES_BUCKET"),
		DO_SPACES_REGION:       region,
		DO_SPACES_ENDPOINT:     endpoint,
		DO_SPACES_CDN_ENDPOINT: os.Getenv("DO_SPACES_CDN_ENDPOINT"),
		// Inference
		MODEL_ACCESS_KEY:   os.Getenv("MODEL_ACCESS_KEY"),
		INFERENCE_BASE_URL: os.Getenv("INFERENCE_BASE_URL"),
		INFERENCE_MODEL:    os.Getenv("INFERENCE_MODEL"),
		// Harvest
		SYSTEM_USER_ID_FOR_QUESTIONS: strings.TrimSpace(os.Getenv("SYSTEM_USER_ID_FOR_QUESTIONS")),
		HARVEST_WORKERS:              workers,
		HARVEST_WINDOW_SIZE:          windowSize,
		HARVEST_WINDOW_PAUSE:         pause,
		HARVEST_MAX_WINDOWS:          maxWindows,
		HARVEST_KEEP_PARTIAL:         keepPartial,
		HARVEST_DOWNLOAD_DIR:         downloadDir,
		HARVEST_INSERT_BATCH:         insertBatch,
		HARVEST_FAILURE_LOG:          failureLog,
		// Redis
		REDIS_URL: os.Getenv("REDIS_URL"),
	}

	return envVariables, nil
}

// Validate reports every missing or malformed variable in a single error.
func (e *EnvironmentVariable) Validate() error {
	err := validator.New().Struct(e)
	if err == nil {
		return nil
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	problems := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		switch fe.Tag() {
		case "required":
			problems = append(problems, fmt.Sprintf("%s is required", fe.Field()))
		case "uuid":
			problems = append(problems, fmt.Sprintf("%s must be a UUID", fe.Field()))
		case "url":
			problems = append(problems, fmt.Sprintf("%s must be a URL", fe.Field()))
		default:
			problems = append(problems, fmt.Sprintf("%s is invalid (%s=%s)", fe.Field(), fe.Tag(), fe.Param()))
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
}

// IsProduction reports whether GO_ENV selects production behaviour.
func (e *EnvironmentVariable) IsProduction() bool {
	return e.GO_ENV == "production"
}

func intEnv(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	// Bare numbers are seconds.
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
