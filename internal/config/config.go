package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath       = "CONFIG_PATH"
	EnvDBConnection     = "DB_CONNECTION"
	EnvJWTSecret        = "JWT_SECRET"
	EnvJWTExpiry        = "JWT_EXPIRY"
	EnvAnalysisAPIKey   = "ANALYSIS_API_KEY"
	EnvVisionAPIKey     = "VISION_API_KEY"
	EnvPassportAPIKey   = "PASSPORT_API_KEY"
	EnvPassportScorerID = "PASSPORT_SCORER_ID"
	EnvVaultBucket      = "VAULT_BUCKET"
	EnvChainRPCURL      = "CHAIN_RPC_URL"
	EnvRedisAddr        = "REDIS_ADDR"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// JWTConfig holds the identity token secret and session expiry.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 30 * 24 * time.Hour

// LoadJWTConfig loads JWT settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{Expiry: defaultJWTExpiry}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.JWT
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	return result, nil
}

// LLMConfig configures one chat-completion role (analysis or vision).
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // openai (compatible) or gemini.
	BaseURL     string        `yaml:"base-url"`
	APIKey      string        `yaml:"api-key"`
	Model       string        `yaml:"model"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max-tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Enabled reports whether the role has credentials.
func (c LLMConfig) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// PassportConfig configures the humanity score API.
type PassportConfig struct {
	BaseURL  string        `yaml:"base-url"`
	APIKey   string        `yaml:"api-key"`
	ScorerID string        `yaml:"scorer-id"`
	Timeout  time.Duration `yaml:"timeout"`
}

// VaultConfig configures sealed document storage.
type VaultConfig struct {
	Bucket   string `yaml:"bucket"` // Empty keeps payloads in memory.
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
	Prefix   string `yaml:"prefix"`
}

// ChainConfig configures transaction confirmation checks.
type ChainConfig struct {
	RPCURL        string        `yaml:"rpc-url"`
	Confirmations uint64        `yaml:"confirmations"`
	PollInterval  time.Duration `yaml:"poll-interval"`
	Timeout       time.Duration `yaml:"timeout"`
}

// RateLimitConfig configures per-user limits on upstream-heavy routes.
type RateLimitConfig struct {
	PerWindow     int           `yaml:"per-window"`
	Window        time.Duration `yaml:"window"`
	RedisEnabled  bool          `yaml:"redis-enabled"`
	RedisAddr     string        `yaml:"redis-addr"`
	RedisPassword string        `yaml:"redis-password"`
	RedisDB       int           `yaml:"redis-db"`
	RedisPrefix   string        `yaml:"redis-prefix"`
}

// AssessmentConfig configures the stale-processing sweeper.
type AssessmentConfig struct {
	SweepInterval time.Duration `yaml:"sweep-interval"`
	StaleAfter    time.Duration `yaml:"stale-after"`
}

// LoggingConfig configures log level and optional file output.
type LoggingConfig struct {
	Debug         bool   `yaml:"debug"`
	LoggingToFile bool   `yaml:"logging-to-file"`
	LogFile       string `yaml:"log-file"`
	MaxSizeMB     int    `yaml:"log-max-size-mb"`
	MaxBackups    int    `yaml:"log-max-backups"`
}

// ServiceConfig groups the integration settings read from the config file.
type ServiceConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	Logging    LoggingConfig    `yaml:"logging"`
	Analysis   LLMConfig        `yaml:"analysis"`
	Vision     LLMConfig        `yaml:"vision"`
	Passport   PassportConfig   `yaml:"passport"`
	Vault      VaultConfig      `yaml:"vault"`
	Chain      ChainConfig      `yaml:"chain"`
	RateLimit  RateLimitConfig  `yaml:"rate-limit"`
	Assessment AssessmentConfig `yaml:"assessment"`
}

// Defaults for integration settings.
const (
	DefaultAnalysisBaseURL     = "https://nilai-a779.nillion.network/v1"
	DefaultAnalysisModel       = "google/gemma-3-27b-it"
	DefaultAnalysisTemperature = 0.3
	DefaultAnalysisMaxTokens   = 1000
	DefaultVisionBaseURL       = "https://api.openai.com/v1"
	DefaultVisionModel         = "gpt-4o-mini"
	DefaultVisionMaxTokens     = 15000
	DefaultPassportBaseURL     = "https://api.scorer.gitcoin.co"
	DefaultVaultPrefix         = "vault"
)

// DefaultServiceConfig returns the settings used when the file omits them.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Logging: LoggingConfig{
			LogFile:    "logs/trustlend.log",
			MaxSizeMB:  50,
			MaxBackups: 5,
		},
		Analysis: LLMConfig{
			Provider:    "openai",
			BaseURL:     DefaultAnalysisBaseURL,
			Model:       DefaultAnalysisModel,
			Temperature: DefaultAnalysisTemperature,
			MaxTokens:   DefaultAnalysisMaxTokens,
			Timeout:     60 * time.Second,
		},
		Vision: LLMConfig{
			Provider:  "openai",
			BaseURL:   DefaultVisionBaseURL,
			Model:     DefaultVisionModel,
			MaxTokens: DefaultVisionMaxTokens,
			Timeout:   120 * time.Second,
		},
		Passport: PassportConfig{
			BaseURL: DefaultPassportBaseURL,
			Timeout: 15 * time.Second,
		},
		Vault: VaultConfig{
			Prefix: DefaultVaultPrefix,
		},
		Chain: ChainConfig{
			Confirmations: 2,
			PollInterval:  4 * time.Second,
			Timeout:       10 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			PerWindow: 30,
			Window:    time.Minute,
		},
		Assessment: AssessmentConfig{
			SweepInterval: time.Minute,
			StaleAfter:    2 * time.Minute,
		},
	}
}

// LoadServiceConfig reads integration settings from the YAML config file and
// applies environment overrides. A missing file yields defaults.
func LoadServiceConfig(configPath string) (ServiceConfig, error) {
	cfg := DefaultServiceConfig()

	data, errRead := os.ReadFile(configPath)
	if errRead != nil && !errors.Is(errRead, os.ErrNotExist) {
		return cfg, fmt.Errorf("read config file: %w", errRead)
	}
	if errRead == nil {
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return cfg, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	}

	applyEnvOverride(&cfg.Analysis.APIKey, EnvAnalysisAPIKey)
	applyEnvOverride(&cfg.Vision.APIKey, EnvVisionAPIKey)
	applyEnvOverride(&cfg.Passport.APIKey, EnvPassportAPIKey)
	applyEnvOverride(&cfg.Passport.ScorerID, EnvPassportScorerID)
	applyEnvOverride(&cfg.Vault.Bucket, EnvVaultBucket)
	applyEnvOverride(&cfg.Chain.RPCURL, EnvChainRPCURL)
	if addr := strings.TrimSpace(os.Getenv(EnvRedisAddr)); addr != "" {
		cfg.RateLimit.RedisAddr = addr
		cfg.RateLimit.RedisEnabled = true
	}

	normalizeServiceConfig(&cfg)
	return cfg, nil
}

func applyEnvOverride(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func normalizeServiceConfig(cfg *ServiceConfig) {
	defaults := DefaultServiceConfig()
	normalizeLLM(&cfg.Analysis, defaults.Analysis)
	normalizeLLM(&cfg.Vision, defaults.Vision)

	cfg.Passport.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Passport.BaseURL), "/")
	if cfg.Passport.BaseURL == "" {
		cfg.Passport.BaseURL = defaults.Passport.BaseURL
	}
	if cfg.Passport.Timeout <= 0 {
		cfg.Passport.Timeout = defaults.Passport.Timeout
	}
	if strings.TrimSpace(cfg.Vault.Prefix) == "" {
		cfg.Vault.Prefix = defaults.Vault.Prefix
	}
	if cfg.Chain.Confirmations == 0 {
		cfg.Chain.Confirmations = defaults.Chain.Confirmations
	}
	if cfg.Chain.PollInterval <= 0 {
		cfg.Chain.PollInterval = defaults.Chain.PollInterval
	}
	if cfg.Chain.Timeout <= 0 {
		cfg.Chain.Timeout = defaults.Chain.Timeout
	}
	if cfg.RateLimit.Window <= 0 {
		cfg.RateLimit.Window = defaults.RateLimit.Window
	}
	if cfg.RateLimit.PerWindow < 0 {
		cfg.RateLimit.PerWindow = 0
	}
	if cfg.RateLimit.RedisDB < 0 {
		cfg.RateLimit.RedisDB = 0
	}
	if cfg.Assessment.SweepInterval <= 0 {
		cfg.Assessment.SweepInterval = defaults.Assessment.SweepInterval
	}
	if cfg.Assessment.StaleAfter <= 0 {
		cfg.Assessment.StaleAfter = defaults.Assessment.StaleAfter
	}
	if cfg.Logging.MaxSizeMB <= 0 {
		cfg.Logging.MaxSizeMB = defaults.Logging.MaxSizeMB
	}
	if strings.TrimSpace(cfg.Logging.LogFile) == "" {
		cfg.Logging.LogFile = defaults.Logging.LogFile
	}
}

func normalizeLLM(cfg *LLMConfig, defaults LLMConfig) {
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.Provider == "" {
		cfg.Provider = defaults.Provider
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaults.Model
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaults.Temperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
}

// ListenAddr returns host:port for the HTTP server, preferring the flag port
// when the file leaves it unset.
func (c ServiceConfig) ListenAddr(defaultPort int) string {
	port := c.Port
	if port <= 0 {
		port = defaultPort
	}
	return strings.TrimSpace(c.Host) + ":" + strconv.Itoa(port)
}
