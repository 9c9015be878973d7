package config

import (
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mattn/go-isatty"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/jobpipe/internal/resilience"
)

// Config holds the process-wide configuration. Per-tenant settings live in
// each tenant's own config.yaml.
type Config struct {
	DataDir   string          `yaml:"data_dir" mapstructure:"data_dir" validate:"required"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Ledger    LedgerConfig    `yaml:"ledger" mapstructure:"ledger"`
	AI        AIConfig        `yaml:"ai" mapstructure:"ai"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    GeminiConfig    `yaml:"gemini" mapstructure:"gemini"`
	ClaudeCLI ClaudeCLIConfig `yaml:"claude_cli" mapstructure:"claude_cli"`
	Budgets   BudgetsConfig   `yaml:"budgets" mapstructure:"budgets"`
	Circuit   CircuitConfig   `yaml:"circuit" mapstructure:"circuit"`
	Render    RenderConfig    `yaml:"render" mapstructure:"render"`
	DocText   DocTextConfig   `yaml:"doctext" mapstructure:"doctext"`
	APIKeys   APIKeysConfig   `yaml:"api_keys" mapstructure:"api_keys"`
	Mail      MailConfig      `yaml:"mail" mapstructure:"mail"`
	Run       RunConfig       `yaml:"run" mapstructure:"run"`
}

// LogConfig configures the zap logger. An empty format picks console on a
// terminal and json otherwise.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format" validate:"omitempty,oneof=console json"`
}

// LedgerConfig selects the ledger backend.
type LedgerConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver" validate:"oneof=file sqlite"`
}

// AIConfig selects the text generation backend.
type AIConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider" validate:"oneof=anthropic gemini claude-cli"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens" validate:"gt=0"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// GeminiConfig holds Google Gemini settings.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// ClaudeCLIConfig configures the local claude binary backend.
type ClaudeCLIConfig struct {
	Path  string `yaml:"path" mapstructure:"path"`
	Model string `yaml:"model" mapstructure:"model"`
}

// BudgetConfig bounds one class of external call.
type BudgetConfig struct {
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gte=0"`
	MaxRetries  int `yaml:"max_retries" mapstructure:"max_retries" validate:"gte=0"`
	BackoffMs   int `yaml:"backoff_ms" mapstructure:"backoff_ms" validate:"gte=0"`
}

// Budget converts to the adapter's budget type.
func (b BudgetConfig) Budget() resilience.Budget {
	return resilience.NewBudget(b.TimeoutSecs, b.MaxRetries, b.BackoffMs)
}

// BudgetsConfig holds per-dependency call budgets.
type BudgetsConfig struct {
	Source   BudgetConfig `yaml:"source" mapstructure:"source"`
	AI       BudgetConfig `yaml:"ai" mapstructure:"ai"`
	Mail     BudgetConfig `yaml:"mail" mapstructure:"mail"`
	URLCheck BudgetConfig `yaml:"url_check" mapstructure:"url_check"`
	Render   BudgetConfig `yaml:"render" mapstructure:"render"`
}

// CircuitConfig configures the per-source circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// RenderConfig configures markdown to DOCX conversion.
type RenderConfig struct {
	PandocPath string `yaml:"pandoc_path" mapstructure:"pandoc_path"`
}

// DocTextConfig configures text extraction from uploaded documents.
type DocTextConfig struct {
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	PandocPath    string `yaml:"pandoc_path" mapstructure:"pandoc_path"`
}

// APIKeysConfig holds process-wide source credentials. A tenant's own keys
// take precedence.
type APIKeysConfig struct {
	JSearch       string `yaml:"jsearch_rapidapi" mapstructure:"jsearch_rapidapi"`
	FantasticJobs string `yaml:"fantastic_jobs_rapidapi" mapstructure:"fantastic_jobs_rapidapi"`
	AdzunaAppID   string `yaml:"adzuna_app_id" mapstructure:"adzuna_app_id"`
	AdzunaAppKey  string `yaml:"adzuna_app_key" mapstructure:"adzuna_app_key"`
}

// MailConfig holds fallback SMTP settings for tenants that set none.
type MailConfig struct {
	Sender   string `yaml:"sender" mapstructure:"sender" validate:"omitempty,email"`
	Password string `yaml:"password" mapstructure:"password"`
	SMTPHost string `yaml:"smtp_host" mapstructure:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port" mapstructure:"smtp_port"`
}

// RunConfig holds default per-run limits.
type RunConfig struct {
	TailorLimit int `yaml:"tailor_limit" mapstructure:"tailor_limit" validate:"gte=0"`
	NotifyLimit int `yaml:"notify_limit" mapstructure:"notify_limit" validate:"gte=0"`
}

// Load reads configuration from path (or ./jobpipe.yaml when empty), the
// environment (JOBPIPE_*), and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("jobpipe")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("JOBPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "./customers")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "")
	v.SetDefault("ledger.driver", "file")
	v.SetDefault("ai.provider", "anthropic")
	v.SetDefault("ai.max_tokens", 8192)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("gemini.key", "")
	v.SetDefault("gemini.model", "gemini-1.5-pro")
	v.SetDefault("claude_cli.path", "claude")
	v.SetDefault("claude_cli.model", "sonnet")
	v.SetDefault("budgets.source.timeout_secs", 30)
	v.SetDefault("budgets.source.max_retries", 1)
	v.SetDefault("budgets.source.backoff_ms", 1000)
	v.SetDefault("budgets.ai.timeout_secs", 300)
	v.SetDefault("budgets.ai.max_retries", 2)
	v.SetDefault("budgets.ai.backoff_ms", 5000)
	v.SetDefault("budgets.mail.timeout_secs", 60)
	v.SetDefault("budgets.mail.max_retries", 1)
	v.SetDefault("budgets.mail.backoff_ms", 2000)
	v.SetDefault("budgets.url_check.timeout_secs", 8)
	v.SetDefault("budgets.url_check.max_retries", 0)
	v.SetDefault("budgets.url_check.backoff_ms", 0)
	v.SetDefault("budgets.render.timeout_secs", 60)
	v.SetDefault("budgets.render.max_retries", 0)
	v.SetDefault("budgets.render.backoff_ms", 0)
	v.SetDefault("circuit.failure_threshold", 3)
	v.SetDefault("circuit.reset_timeout_secs", 300)
	v.SetDefault("render.pandoc_path", "pandoc")
	v.SetDefault("doctext.pdftotext_path", "pdftotext")
	v.SetDefault("doctext.pandoc_path", "pandoc")
	v.SetDefault("api_keys.jsearch_rapidapi", "")
	v.SetDefault("api_keys.fantastic_jobs_rapidapi", "")
	v.SetDefault("api_keys.adzuna_app_id", "")
	v.SetDefault("api_keys.adzuna_app_key", "")
	v.SetDefault("mail.sender", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.smtp_host", "")
	v.SetDefault("mail.smtp_port", 465)
	v.SetDefault("run.tailor_limit", 10)
	v.SetDefault("run.notify_limit", 0)
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return eris.Wrap(err, "config: validate")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if resolveFormat(cfg.Format) == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

func resolveFormat(format string) string {
	if format != "" {
		return format
	}
	fd := os.Stderr.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return "console"
	}
	return "json"
}
