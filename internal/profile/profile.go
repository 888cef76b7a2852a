package profile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start the main server.
type Profile struct {
	// LLM provider configuration (OpenAI-compatible protocol).
	// All providers (openai, deepseek, siliconflow, ollama) use the same config.
	LLMProvider string // Provider identifier: openai, deepseek, siliconflow, ollama
	LLMAPIKey   string
	LLMBaseURL  string // optional, has a default per provider
	LLMTimeout  int    // LLM request timeout in seconds (default: 60)

	// Tier model names. Each priority tier maps to a concrete model.
	LLMModelQuality string
	LLMModelBalance string
	LLMModelEconomy string

	// Guardian notification configuration.
	GuardianWebhookURL   string
	TelegramBotToken     string
	TelegramGuardianChat int64

	// Cost control knobs.
	DailyBudgetUSD    float64 // daily spend ceiling used for usage ratio (default: 1.0)
	CostAlertUSD      float64 // daily cost alert threshold (default: 0.8)
	FallbackContent   string  // path to the fallback content catalogue JSON; empty uses the built-in bank
	CurriculumTopics  string  // path to the curriculum topic list JSON; empty uses the built-in list
	ProviderRPS       float64 // provider request rate limit (default: 2)
	CacheCapacity     int     // response cache capacity (default: 2000)
	CacheSimilarity   float64 // fuzzy match Jaccard threshold (default: 0.8)
	SessionBreakMins  int     // break suggestion elapsed threshold (default: 20)
	SessionBreakMsgs  int     // break suggestion message threshold (default: 15)
	SessionIdleHours  int     // inactivity archive timeout in hours (default: 2)
	ShortTermEntries  int     // short-term memory ring size per user (default: 10)
	CompressionWindow int     // verbatim tail window for history compression (default: 10)

	// Server configuration.
	Mode    string
	Addr    string
	Port    int
	Data    string
	Driver  string
	DSN     string
	Version string
}

// Provider default base URLs, applied when LLM_BASE_URL is not set.
var llmProviderDefaults = map[string]string{
	"openai":      "https://api.openai.com/v1",
	"deepseek":    "https://api.deepseek.com",
	"siliconflow": "https://api.siliconflow.cn/v1",
	"ollama":      "http://localhost:11434",
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if an LLM API key is configured.
// Ollama runs without a key, so the provider alone is enough there.
func (p *Profile) IsAIEnabled() bool {
	return p.LLMAPIKey != "" || p.LLMProvider == "ollama"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.LLMProvider = getEnvOrDefault("TUTORSENSE_LLM_PROVIDER", "openai")
	p.LLMAPIKey = getEnvOrDefault("TUTORSENSE_LLM_API_KEY", "")
	p.LLMBaseURL = getEnvOrDefault("TUTORSENSE_LLM_BASE_URL", "")
	p.LLMTimeout = getEnvOrDefaultInt("TUTORSENSE_LLM_TIMEOUT_SECONDS", 60)

	p.LLMModelQuality = getEnvOrDefault("TUTORSENSE_LLM_MODEL_QUALITY", "gpt-4o")
	p.LLMModelBalance = getEnvOrDefault("TUTORSENSE_LLM_MODEL_BALANCE", "gpt-4o-mini")
	p.LLMModelEconomy = getEnvOrDefault("TUTORSENSE_LLM_MODEL_ECONOMY", "gpt-4o-mini")

	if p.LLMBaseURL == "" {
		if baseURL, ok := llmProviderDefaults[p.LLMProvider]; ok {
			p.LLMBaseURL = baseURL
		}
	}

	p.GuardianWebhookURL = getEnvOrDefault("TUTORSENSE_GUARDIAN_WEBHOOK_URL", "")
	p.TelegramBotToken = getEnvOrDefault("TUTORSENSE_TELEGRAM_BOT_TOKEN", "")
	if chatID := os.Getenv("TUTORSENSE_TELEGRAM_GUARDIAN_CHAT"); chatID != "" {
		if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
			p.TelegramGuardianChat = id
		}
	}

	p.DailyBudgetUSD = getEnvOrDefaultFloat("TUTORSENSE_DAILY_BUDGET_USD", 1.0)
	p.CostAlertUSD = getEnvOrDefaultFloat("TUTORSENSE_COST_ALERT_USD", 0.8)
	p.FallbackContent = getEnvOrDefault("TUTORSENSE_FALLBACK_CONTENT", "")
	p.CurriculumTopics = getEnvOrDefault("TUTORSENSE_CURRICULUM_TOPICS", "")
	p.ProviderRPS = getEnvOrDefaultFloat("TUTORSENSE_PROVIDER_RPS", 2)
	p.CacheCapacity = getEnvOrDefaultInt("TUTORSENSE_CACHE_CAPACITY", 2000)
	p.CacheSimilarity = getEnvOrDefaultFloat("TUTORSENSE_CACHE_SIMILARITY", 0.8)
	p.SessionBreakMins = getEnvOrDefaultInt("TUTORSENSE_SESSION_BREAK_MINUTES", 20)
	p.SessionBreakMsgs = getEnvOrDefaultInt("TUTORSENSE_SESSION_BREAK_MESSAGES", 15)
	p.SessionIdleHours = getEnvOrDefaultInt("TUTORSENSE_SESSION_IDLE_HOURS", 2)
	p.ShortTermEntries = getEnvOrDefaultInt("TUTORSENSE_SHORT_TERM_ENTRIES", 10)
	p.CompressionWindow = getEnvOrDefaultInt("TUTORSENSE_COMPRESSION_WINDOW", 10)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies.
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

// Validate normalizes and checks the profile.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		p.Data = "/var/opt/tutorsense"
	}
	if p.Data == "" {
		p.Data = "."
	}
	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		return err
	}
	p.Data = dataDir

	switch p.Driver {
	case "sqlite":
		if p.DSN == "" {
			p.DSN = filepath.Join(dataDir, "tutorsense_"+p.Mode+".db")
		}
	case "postgres":
		if p.DSN == "" {
			return errors.New("dsn is required for postgres driver")
		}
	default:
		return errors.Errorf("unsupported driver %q", p.Driver)
	}

	if p.Port <= 0 {
		p.Port = 28084
	}
	if p.DailyBudgetUSD <= 0 {
		p.DailyBudgetUSD = 1.0
	}
	if p.CacheSimilarity <= 0 || p.CacheSimilarity > 1 {
		p.CacheSimilarity = 0.8
	}
	return nil
}
