package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreS3     = "s3"

	ProviderGrok   = "grok"
	ProviderGemini = "gemini"
	ProviderNone   = "none"
)

type Config struct {
	HTTPPort string
	LogMode  string

	StoreBackend string
	DataDir      string
	DatabaseURL  string
	S3           S3Config

	LLMProvider    string
	XAIAPIKey      string
	XAIModel       string
	XAIBaseURL     string
	GeminiAPIKey   string
	GeminiModel    string
	LLMTimeout     time.Duration
	LLMMaxAttempts int

	SeniorYearsThreshold float64
	ProfileIDLength      int
	MinResumeChars       int
	MaxUploadBytes       int64
	DefaultPlanWeeks     int
	MaxPlanWeeks         int
	AnalysisLevels       []string

	ReposFile        string
	AnalysisSchedule string
	SchedulerEnabled bool

	Source SourceConfig

	RedisURL  string
	AMQPURL   string
	AMQPQueue string
}

type S3Config struct {
	Bucket    string
	Prefix    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// SourceConfig controls how repositories are read before their analysis.
type SourceConfig struct {
	Enabled      bool
	GitHubToken  string
	Include      []string
	Exclude      []string
	MaxFileBytes int64
	MaxFiles     int
	AllowLocal   bool
}

var AppConfig Config

// LoadConfig reads the optional .env file and the process environment into AppConfig.
// It returns the list of non-fatal warnings alongside any validation error.
func LoadConfig() ([]string, error) {
	var warnings []string
	if err := godotenv.Load(); err != nil {
		warnings = append(warnings, "no .env file found, relying on environment variables")
	}

	AppConfig = Config{
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		LogMode:  getEnv("LOG_MODE", "development"),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", StoreFile)),
		DataDir:      getEnv("DATA_DIR", "data"),
		DatabaseURL:  getEnv("DATABASE_URL", "onboarding.db"),
		S3: S3Config{
			Bucket:    getEnv("S3_BUCKET", ""),
			Prefix:    getEnv("S3_PREFIX", ""),
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			Region:    getEnv("S3_REGION", "auto"),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
		},

		LLMProvider:    strings.ToLower(getEnv("LLM_PROVIDER", "")),
		XAIAPIKey:      getEnv("XAI_API_KEY", ""),
		XAIModel:       getEnv("XAI_MODEL", "grok-3"),
		XAIBaseURL:     getEnv("XAI_BASE_URL", "https://api.x.ai/v1"),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-1.5-flash-latest"),
		LLMTimeout:     getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),
		LLMMaxAttempts: getEnvAsInt("LLM_MAX_ATTEMPTS", 2),

		SeniorYearsThreshold: getEnvAsFloat("SENIOR_YEARS_THRESHOLD", 3),
		ProfileIDLength:      getEnvAsInt("PROFILE_ID_LENGTH", 12),
		MinResumeChars:       getEnvAsInt("MIN_RESUME_CHARS", 50),
		MaxUploadBytes:       int64(getEnvAsInt("MAX_UPLOAD_BYTES", 10<<20)),
		DefaultPlanWeeks:     getEnvAsInt("DEFAULT_PLAN_WEEKS", 4),
		MaxPlanWeeks:         getEnvAsInt("MAX_PLAN_WEEKS", 12),
		AnalysisLevels:       getEnvAsList("ANALYSIS_LEVELS", []string{"junior", "senior"}),

		ReposFile:        getEnv("REPOS_FILE", "repos.yaml"),
		AnalysisSchedule: getEnv("ANALYSIS_SCHEDULE", "0 0 2 * * *"),
		SchedulerEnabled: getEnvAsBool("SCHEDULER_ENABLED", false),

		Source: SourceConfig{
			Enabled:      getEnvAsBool("REPO_READ_ENABLED", true),
			GitHubToken:  getEnv("GITHUB_TOKEN", ""),
			Include:      getEnvAsPatterns("REPO_INCLUDE"),
			Exclude:      getEnvAsPatterns("REPO_EXCLUDE"),
			MaxFileBytes: int64(getEnvAsInt("REPO_MAX_FILE_BYTES", 100_000)),
			MaxFiles:     getEnvAsInt("REPO_MAX_FILES", 500),
			AllowLocal:   getEnvAsBool("REPO_ALLOW_LOCAL", false),
		},

		RedisURL:  getEnv("REDIS_URL", ""),
		AMQPURL:   getEnv("AMQP_URL", ""),
		AMQPQueue: getEnv("AMQP_QUEUE", "codebase_analysis"),
	}

	if AppConfig.LLMProvider == "" {
		AppConfig.LLMProvider = defaultProvider(AppConfig)
	}

	w, err := AppConfig.Validate()
	return append(warnings, w...), err
}

func defaultProvider(c Config) string {
	switch {
	case c.XAIAPIKey != "":
		return ProviderGrok
	case c.GeminiAPIKey != "":
		return ProviderGemini
	default:
		return ProviderNone
	}
}

// Validate rejects settings the service cannot run with. Missing LLM credentials are only
// reported as warnings since every generation path has a fallback.
func (c Config) Validate() ([]string, error) {
	var warnings []string

	switch c.StoreBackend {
	case StoreFile, StoreSQLite:
	case StoreS3:
		if c.S3.Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required when STORE_BACKEND=s3")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.LLMProvider {
	case ProviderGrok:
		if c.XAIAPIKey == "" {
			warnings = append(warnings, "XAI_API_KEY is empty, generation will use fallbacks")
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			warnings = append(warnings, "GEMINI_API_KEY is empty, generation will use fallbacks")
		}
	case ProviderNone:
		warnings = append(warnings, "no LLM provider configured, generation will use fallbacks")
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}

	if c.LLMTimeout <= 0 {
		return nil, fmt.Errorf("LLM_TIMEOUT must be positive")
	}
	if c.LLMMaxAttempts < 1 {
		return nil, fmt.Errorf("LLM_MAX_ATTEMPTS must be at least 1")
	}
	if c.ProfileIDLength < 8 || c.ProfileIDLength > 64 {
		return nil, fmt.Errorf("PROFILE_ID_LENGTH must be between 8 and 64")
	}
	if c.MinResumeChars < 1 {
		return nil, fmt.Errorf("MIN_RESUME_CHARS must be positive")
	}
	if c.MaxUploadBytes < 1 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.MaxPlanWeeks < 1 || c.DefaultPlanWeeks < 1 || c.DefaultPlanWeeks > c.MaxPlanWeeks {
		return nil, fmt.Errorf("DEFAULT_PLAN_WEEKS must be within [1, MAX_PLAN_WEEKS]")
	}
	if c.Source.MaxFileBytes < 1 || c.Source.MaxFiles < 1 {
		return nil, fmt.Errorf("REPO_MAX_FILE_BYTES and REPO_MAX_FILES must be positive")
	}
	if len(c.AnalysisLevels) == 0 {
		return nil, fmt.Errorf("ANALYSIS_LEVELS must name at least one level")
	}
	return warnings, nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// getEnvAsPatterns splits a comma separated list of globs, keeping their case. It returns nil
// when the variable is unset so the reader falls back to its defaults.
func getEnvAsPatterns(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
