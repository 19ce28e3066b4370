package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the miner configuration
type Config struct {
	Dataset    DatasetConfig    `mapstructure:"dataset"`
	GitHub     GitHubConfig     `mapstructure:"github"`
	Etherscan  EtherscanConfig  `mapstructure:"etherscan"`
	Ethereum   EthereumConfig   `mapstructure:"ethereum"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Detectors  DetectorsConfig  `mapstructure:"detectors"`
	Miner      MinerConfig      `mapstructure:"miner"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Shutdown   ShutdownConfig   `mapstructure:"shutdown"`
}

// DatasetConfig locates the produced artifact on disk
type DatasetConfig struct {
	Dir       string `mapstructure:"dir"`
	LogsDir   string `mapstructure:"logs_dir"`
	IssuesDir string `mapstructure:"issues_dir"`
	ClonesDir string `mapstructure:"clones_dir"`
}

// GitHubConfig contains GitHub API client settings
type GitHubConfig struct {
	Token          string        `mapstructure:"token"`
	SearchQuery    string        `mapstructure:"search_query"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// EtherscanConfig contains Etherscan API client settings
type EtherscanConfig struct {
	APIKey               string        `mapstructure:"api_key"`
	BaseURL              string        `mapstructure:"base_url"`
	ChainID              int           `mapstructure:"chain_id"`
	RequestsPerSecond    int           `mapstructure:"requests_per_second"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout"`
	VerifiedContractsCSV string        `mapstructure:"verified_contracts_csv"`
}

// EthereumConfig contains Ethereum client settings
type EthereumConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// DetectorsConfig contains settings for the wrapped analysis tools
type DetectorsConfig struct {
	Slither SlitherConfig `mapstructure:"slither"`
	Oyente  OyenteConfig  `mapstructure:"oyente"`
	Solc    SolcConfig    `mapstructure:"solc"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SolcConfig locates the compiler toolchain the detectors share
type SolcConfig struct {
	Binary       string `mapstructure:"binary"`
	SelectBinary string `mapstructure:"select_binary"`
}

// SlitherConfig contains Slither invocation settings
type SlitherConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Binary  string `mapstructure:"binary"`
	Commit  string `mapstructure:"commit"`
}

// OyenteConfig contains Oyente invocation settings
type OyenteConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Python  string `mapstructure:"python"`
	Version string `mapstructure:"version"`
	Commit  string `mapstructure:"commit"`
}

// MinerConfig contains pipeline-wide mining settings
type MinerConfig struct {
	Workers            int    `mapstructure:"workers"`
	MinSolidityVersion string `mapstructure:"min_solidity_version"`
	BlacklistFile      string `mapstructure:"blacklist_file"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Host        string `mapstructure:"host"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// ShutdownConfig contains graceful shutdown settings
type ShutdownConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Dataset defaults
	viper.SetDefault("dataset.dir", "Dataset")
	viper.SetDefault("dataset.logs_dir", "Logs/Detector")
	viper.SetDefault("dataset.issues_dir", "IssuesData")
	viper.SetDefault("dataset.clones_dir", "Repos")

	// GitHub defaults
	viper.SetDefault("github.search_query", "smart contract stars:>9")
	viper.SetDefault("github.request_timeout", "30s")

	// Etherscan defaults
	viper.SetDefault("etherscan.base_url", "https://api.etherscan.io/v2/api")
	viper.SetDefault("etherscan.chain_id", 1)
	viper.SetDefault("etherscan.requests_per_second", 4)
	viper.SetDefault("etherscan.request_timeout", "10s")

	// Ethereum defaults
	viper.SetDefault("ethereum.request_timeout", "30s")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.database", "solfixes")

	// Detector defaults
	viper.SetDefault("detectors.slither.enabled", true)
	viper.SetDefault("detectors.slither.binary", "slither")
	viper.SetDefault("detectors.oyente.enabled", true)
	viper.SetDefault("detectors.oyente.python", "python3")
	viper.SetDefault("detectors.solc.binary", "solc")
	viper.SetDefault("detectors.solc.select_binary", "solc-select")
	viper.SetDefault("detectors.timeout", "10m")

	// Miner defaults
	viper.SetDefault("miner.workers", 4)
	viper.SetDefault("miner.min_solidity_version", "0.4.19")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.host", "0.0.0.0")
	viper.SetDefault("monitoring.metrics_port", 9090)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")

	// Shutdown defaults
	viper.SetDefault("shutdown.timeout", "30s")
}

func validate(config *Config) error {
	if config.Dataset.Dir == "" {
		return fmt.Errorf("dataset.dir is required")
	}
	if config.Miner.Workers <= 0 {
		return fmt.Errorf("miner.workers must be positive")
	}
	if config.Detectors.Oyente.Enabled && config.Detectors.Oyente.Path == "" {
		return fmt.Errorf("detectors.oyente.path is required when oyente is enabled")
	}
	return nil
}

// blacklistFile is the on-disk shape of the repository blacklist
type blacklistFile struct {
	Repos []string `yaml:"repos"`
}

// LoadBlacklist reads the YAML blacklist referenced by miner.blacklist_file.
// A missing path yields an empty set.
func LoadBlacklist(path string) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	if path == "" {
		return set, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return set, nil
		}
		return nil, fmt.Errorf("failed to read blacklist file: %w", err)
	}

	var bl blacklistFile
	if err := yaml.Unmarshal(data, &bl); err != nil {
		return nil, fmt.Errorf("failed to parse blacklist file: %w", err)
	}

	for _, name := range bl.Repos {
		set[name] = struct{}{}
	}
	return set, nil
}

// GetConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
