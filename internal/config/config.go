package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	Mailbox      string

	PollIntervalSec    int
	RefreshIntervalSec int

	DuplicateThreshold float64
	SearchCandidates   int
	SearchTopK         int

	AIBaseURL      string
	AIAPIKey       string
	ModelName      string
	EmbeddingModel string
	AITimeoutMs    int
	PromptPath     string

	OCREndpoint  string
	OCRAPIKey    string
	OCRTimeoutMs int

	APIAddr string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath: getEnv("DB_PATH", filepath.Join(cwd, "data", "triage.db")),

		IMAPHost:     getEnv("IMAP_HOST", "imap.gmail.com"),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("EMAIL_USER", ""),
		IMAPPassword: getEnv("EMAIL_PASS", ""),
		Mailbox:      getEnv("MAILBOX", "INBOX"),

		PollIntervalSec:    getEnvInt("POLL_INTERVAL_SEC", 10),
		RefreshIntervalSec: getEnvInt("REFRESH_INTERVAL_SEC", 60),

		DuplicateThreshold: getEnvFloat("DUPLICATE_CHECK_THRESHOLD", 0.85),
		SearchCandidates:   getEnvInt("SEARCH_NUM_CANDIDATES", 5),
		SearchTopK:         getEnvInt("SEARCH_TOP_K", 3),

		AIBaseURL:      getEnv("GOOGLE_AI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		AIAPIKey:       getEnv("GOOGLE_AI_API_KEY", ""),
		ModelName:      getEnv("MODEL_NAME", "gemini-1.5-flash"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-004"),
		AITimeoutMs:    getEnvInt("AI_TIMEOUT_MS", 30000),
		PromptPath:     getEnv("CLASSIFY_PROMPT_PATH", ""),

		OCREndpoint:  getEnv("OCR_ENDPOINT", "https://vision.googleapis.com/v1/images:annotate"),
		OCRAPIKey:    getEnv("OCR_API_KEY", ""),
		OCRTimeoutMs: getEnvInt("OCR_TIMEOUT_MS", 20000),

		APIAddr: getEnv("API_ADDR", ":8000"),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
