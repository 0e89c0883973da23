package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	BAN        BANConfig        `yaml:"ban" mapstructure:"ban"`
	GeoAPI     GeoAPIConfig     `yaml:"geoapi" mapstructure:"geoapi"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Commune    CommuneConfig    `yaml:"commune" mapstructure:"commune"`
	NAF        NAFConfig        `yaml:"naf" mapstructure:"naf"`
	Export     ExportConfig     `yaml:"export" mapstructure:"export"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// BANConfig holds Base Adresse Nationale geocoder settings.
type BANConfig struct {
	BaseURL           string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs       int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond int    `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// GeoAPIConfig holds geo.api.gouv.fr settings for the commune directory.
type GeoAPIConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// SearchConfig holds recherche-entreprises API settings.
type SearchConfig struct {
	BaseURL           string `yaml:"base_url" mapstructure:"base_url"`
	PerPage           int    `yaml:"per_page" mapstructure:"per_page"`
	TimeoutSecs       int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerWindow int    `yaml:"requests_per_window" mapstructure:"requests_per_window"`
	WindowSecs        int    `yaml:"window_secs" mapstructure:"window_secs"`
	RetryBackoffSecs  int    `yaml:"retry_backoff_secs" mapstructure:"retry_backoff_secs"`
	MaxCodesPerCall   int    `yaml:"max_codes_per_call" mapstructure:"max_codes_per_call"`
	MaxPagesAuto      int    `yaml:"max_pages_auto" mapstructure:"max_pages_auto"`
}

// CommuneConfig configures the commune directory cache.
type CommuneConfig struct {
	CachePath string `yaml:"cache_path" mapstructure:"cache_path"`
}

// NAFConfig configures the NAF nomenclature source.
type NAFConfig struct {
	FilePath    string `yaml:"file_path" mapstructure:"file_path"`
	DownloadURL string `yaml:"download_url" mapstructure:"download_url"`
}

// ExportConfig configures result exports.
type ExportConfig struct {
	Dir      string `yaml:"dir" mapstructure:"dir"`
	Encoding string `yaml:"encoding" mapstructure:"encoding"`
}

// AnthropicConfig holds Anthropic API settings for NAF code suggestion.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID  string `yaml:"client_id" mapstructure:"client_id"`
	Username  string `yaml:"username" mapstructure:"username"`
	KeyPath   string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL  string `yaml:"login_url" mapstructure:"login_url"`
	BatchSize int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// NotionConfig holds Notion API credentials and the lead database ID.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	LeadDB string `yaml:"lead_db" mapstructure:"lead_db"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROSPECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "prospect.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("ban.base_url", "https://api-adresse.data.gouv.fr")
	v.SetDefault("ban.timeout_secs", 15)
	v.SetDefault("ban.requests_per_second", 50)
	v.SetDefault("geoapi.base_url", "https://geo.api.gouv.fr")
	v.SetDefault("geoapi.timeout_secs", 60)
	v.SetDefault("search.base_url", "https://recherche-entreprises.api.gouv.fr")
	v.SetDefault("search.per_page", 25)
	v.SetDefault("search.timeout_secs", 30)
	v.SetDefault("search.requests_per_window", 6)
	v.SetDefault("search.window_secs", 1)
	v.SetDefault("search.retry_backoff_secs", 5)
	v.SetDefault("search.max_codes_per_call", 25)
	v.SetDefault("search.max_pages_auto", 10)
	v.SetDefault("commune.cache_path", "communes_cache.json")
	v.SetDefault("naf.file_path", "NAF.csv")
	v.SetDefault("naf.download_url", "https://www.insee.fr/fr/statistiques/fichier/2120875/int_courts_naf_rev_2.csv")
	v.SetDefault("export.dir", "exports")
	v.SetDefault("export.encoding", "utf-8")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.batch_size", 200)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks bounds and the credentials required for the given mode.
// Modes: search, serve, suggest, notion, salesforce.
func (c *Config) Validate(mode string) error {
	var problems []string

	if c.Search.RequestsPerWindow < 1 || c.Search.RequestsPerWindow > 50 {
		problems = append(problems, "search.requests_per_window must be between 1 and 50")
	}
	if c.Search.WindowSecs < 1 {
		problems = append(problems, "search.window_secs must be >= 1")
	}
	if c.Search.PerPage < 1 || c.Search.PerPage > 25 {
		problems = append(problems, "search.per_page must be between 1 and 25")
	}
	if c.Search.MaxCodesPerCall < 1 || c.Search.MaxCodesPerCall > 25 {
		problems = append(problems, "search.max_codes_per_call must be between 1 and 25")
	}

	switch mode {
	case "search":
		// No credentials needed: all three data.gouv APIs are open.
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "suggest":
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
	case "notion":
		if c.Notion.Token == "" {
			problems = append(problems, "notion.token is required")
		}
		if c.Notion.LeadDB == "" {
			problems = append(problems, "notion.lead_db is required")
		}
	case "salesforce":
		if c.Salesforce.ClientID == "" {
			problems = append(problems, "salesforce.client_id is required")
		}
		if c.Salesforce.Username == "" {
			problems = append(problems, "salesforce.username is required")
		}
		if c.Salesforce.KeyPath == "" {
			problems = append(problems, "salesforce.key_path is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
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
