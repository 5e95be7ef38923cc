package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"oscan-intake/pkg"
)

// Config holds every setting the service reads at startup.  Values come from
// defaults, then the optional YAML file named by OSCAN_CONFIG, then the
// environment; later sources win.
type Config struct {
	Port        int    `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`

	GeminiAPIKey    string        `yaml:"gemini_api_key"`
	OpenAIAPIKey    string        `yaml:"openai_api_key"`
	AnthropicAPIKey string        `yaml:"anthropic_api_key"`
	ModelVariants   []string      `yaml:"model_variants"`
	ModelTimeout    time.Duration `yaml:"model_timeout"`
	ModelRetryWait  time.Duration `yaml:"model_retry_wait"`

	SessionTTL time.Duration `yaml:"session_ttl"`

	SMTPAddr       string `yaml:"smtp_addr"`
	MailUsername   string `yaml:"mail_username"`
	MailPassword   string `yaml:"mail_password"`
	MailFromName   string `yaml:"mail_from_name"`
	SendGridAPIKey string `yaml:"sendgrid_api_key"`
	MailWorkers    int    `yaml:"mail_workers"`
	MailQueueSize  int    `yaml:"mail_queue_size"`

	NotifyChannel string `yaml:"notify_channel"`
	NATSURL       string `yaml:"nats_url"`
	NATSSubject   string `yaml:"nats_subject"`

	PublicURL string `yaml:"public_url"`

	// Users seeds the static directory used when no database is configured.
	Users []pkg.User `yaml:"users"`
}

// DefaultModelVariants are tried in order, fastest and cheapest first.
var DefaultModelVariants = []string{
	"gemini-2.0-flash-lite",
	"gemini-2.0-flash",
	"gemini-2.5-flash-lite",
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	return Config{
		Port:           8080,
		LogLevel:       "info",
		LogFormat:      "json",
		ModelVariants:  append([]string(nil), DefaultModelVariants...),
		ModelTimeout:   10 * time.Second,
		ModelRetryWait: time.Second,
		SessionTTL:     24 * time.Hour,
		SMTPAddr:       "smtp.gmail.com:587",
		MailFromName:   "O-Scan Diagnostics",
		MailWorkers:    4,
		MailQueueSize:  256,
		NotifyChannel:  "oscan_events",
		NATSSubject:    "oscan.events.>",
		PublicURL:      "http://127.0.0.1:5000",
	}
}

// Load builds the configuration from defaults, the OSCAN_CONFIG file and
// the environment.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("OSCAN_CONFIG"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Port = envInt("PORT", cfg.Port)
	cfg.DatabaseURL = envStr("DATABASE_URL", cfg.DatabaseURL)
	cfg.LogLevel = envStr("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envStr("LOG_FORMAT", cfg.LogFormat)

	cfg.GeminiAPIKey = envStr("GEMINI_API_KEY", cfg.GeminiAPIKey)
	cfg.OpenAIAPIKey = envStr("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.AnthropicAPIKey = envStr("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	cfg.ModelVariants = envList("MODEL_VARIANTS", cfg.ModelVariants)
	cfg.ModelTimeout = envMillis("MODEL_TIMEOUT_MS", cfg.ModelTimeout)
	cfg.ModelRetryWait = envMillis("MODEL_RETRY_WAIT_MS", cfg.ModelRetryWait)

	cfg.SessionTTL = time.Duration(envInt("SESSION_TTL_MINUTES", int(cfg.SessionTTL/time.Minute))) * time.Minute

	cfg.SMTPAddr = envStr("SMTP_ADDR", cfg.SMTPAddr)
	cfg.MailUsername = envStr("MAIL_USERNAME", cfg.MailUsername)
	cfg.MailPassword = envStr("MAIL_PASSWORD", cfg.MailPassword)
	cfg.MailFromName = envStr("MAIL_FROM_NAME", cfg.MailFromName)
	cfg.SendGridAPIKey = envStr("SENDGRID_API_KEY", cfg.SendGridAPIKey)
	cfg.MailWorkers = envInt("MAIL_WORKERS", cfg.MailWorkers)
	cfg.MailQueueSize = envInt("MAIL_QUEUE_SIZE", cfg.MailQueueSize)

	cfg.NotifyChannel = envStr("POSTGRES_NOTIFY_CHANNEL", cfg.NotifyChannel)
	cfg.NATSURL = envStr("NATS_URL", cfg.NATSURL)
	cfg.NATSSubject = envStr("NATS_SUBJECT", cfg.NATSSubject)

	cfg.PublicURL = strings.TrimRight(envStr("PUBLIC_URL", cfg.PublicURL), "/")
}

func envStr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envMillis(key string, fallback time.Duration) time.Duration {
	return time.Duration(envInt(key, int(fallback/time.Millisecond))) * time.Millisecond
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
