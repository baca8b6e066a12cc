package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"eng-metrics/internal/docstore"
	"eng-metrics/internal/jira"
	"eng-metrics/internal/stats"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Jira             jira.Config
	StoryPointsField string

	DataPath string
	LogDir   string
	CacheDir string
	Store    docstore.Config

	AnalysisTTL time.Duration
	SprintTTL   time.Duration

	Workflow    stats.WorkflowConfig
	CycleLimits stats.CycleLimits

	RefreshCron      string
	RefreshJQL       []string
	RefreshBoards    []int
	MetricsAddr      string
	FetchConcurrency int

	EnableMermaidCharts bool
}

// Load loads the configuration from .env files and environment variables.
func Load() (*AppConfig, error) {
	// 1. Try to load from the executable's directory
	exePath, err := os.Executable()
	exeDir := ""
	if err == nil {
		exeDir = filepath.Dir(exePath)
		envPath := filepath.Join(exeDir, ".env")
		if err := godotenv.Load(envPath); err == nil {
			log.Debug().Str("path", envPath).Msg("Loaded configuration from binary directory")
		}
	}

	// 2. Fallback to current working directory (useful for development/go run)
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found in working directory, relying on environment variables or binary-relative .env")
	}

	// 3. Resolve Data Paths
	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		if exeDir != "" {
			dataPath = exeDir
		} else {
			dataPath = "."
		}
	}

	return fromEnv(dataPath), nil
}

func fromEnv(dataPath string) *AppConfig {
	logDir := filepath.Join(dataPath, "logs")
	cacheDir := filepath.Join(dataPath, "cache")

	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		log.Warn().Err(err).Str("path", cacheDir).Msg("Failed to create cache directory")
	}

	def := stats.DefaultWorkflow()
	limits := stats.DefaultCycleLimits()

	return &AppConfig{
		Jira: jira.Config{
			BaseURL:      getEnv("JIRA_URL", ""),
			XsrfToken:    getEnv("JIRA_XSRF_TOKEN", ""),
			SessionID:    getEnv("JIRA_SESSION_ID", ""),
			RememberMe:   getEnv("JIRA_REMEMBERME_COOKIE", ""),
			Token:        getEnv("JIRA_TOKEN", ""),
			GCILB:        getEnv("JIRA_GCILB", ""),
			GCLB:         getEnv("JIRA_GCLB", ""),
			RequestDelay: time.Duration(getEnvInt("JIRA_REQUEST_DELAY_SECONDS", 2)) * time.Second,
		},
		StoryPointsField: getEnv("JIRA_STORY_POINTS_FIELD", "Story Points"),

		DataPath: dataPath,
		LogDir:   logDir,
		CacheDir: cacheDir,
		Store: docstore.Config{
			Backend:     getEnv("STORE_BACKEND", docstore.BackendFile),
			Dir:         cacheDir,
			PostgresDSN: getEnv("POSTGRES_DSN", ""),
			Redis: docstore.RedisConfig{
				Addr:     getEnv("REDIS_ADDR", ""),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvInt("REDIS_DB", 0),
			},
		},

		AnalysisTTL: getEnvDuration("CACHE_TTL_ANALYSIS", 2*time.Hour),
		SprintTTL:   getEnvDuration("CACHE_TTL_SPRINT", 168*time.Hour),

		Workflow: stats.WorkflowConfig{
			InProgress:           getEnvList("WORKFLOW_IN_PROGRESS", def.InProgress),
			Done:                 getEnvList("WORKFLOW_DONE", def.Done),
			AbandonedResolutions: getEnvList("WORKFLOW_ABANDONED_RESOLUTIONS", def.AbandonedResolutions),
			AbandonedStatuses:    getEnvList("WORKFLOW_ABANDONED_STATUSES", def.AbandonedStatuses),
		},
		CycleLimits: stats.CycleLimits{
			Blocked:       getEnvDuration("CYCLE_BLOCKED_LIMIT", limits.Blocked),
			QualityReview: getEnvDuration("CYCLE_REVIEW_LIMIT", limits.QualityReview),
		},

		RefreshCron:      getEnv("REFRESH_CRON", "0 */2 * * *"),
		RefreshJQL:       getEnvList("REFRESH_JQL", nil),
		RefreshBoards:    getEnvIntList("REFRESH_BOARDS"),
		MetricsAddr:      getEnv("METRICS_ADDR", ":9090"),
		FetchConcurrency: getEnvInt("FETCH_CONCURRENCY", 4),

		EnableMermaidCharts: getEnvBool("ENABLE_MERMAID_CHARTS", false),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Ignoring non-integer setting")
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && d > 0 {
			return d
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Ignoring invalid duration setting")
	}
	return fallback
}

// getEnvList splits a comma separated value. Status names may contain
// spaces, so only surrounding whitespace is trimmed.
func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvIntList(key string) []int {
	var out []int
	for _, part := range getEnvList(key, nil) {
		i, err := strconv.Atoi(part)
		if err != nil {
			log.Warn().Str("key", key).Str("value", part).Msg("Ignoring non-integer list entry")
			continue
		}
		out = append(out, i)
	}
	return out
}
