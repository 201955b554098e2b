package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	DeviceINI string         `mapstructure:"device_ini"`
	Database  DatabaseConfig `mapstructure:"db"`
	Tasks     TaskConfig     `mapstructure:",squash"`
	API       APIConfig      `mapstructure:"api"`
	BACnet    BACnetConfig   `mapstructure:"bacnet"`
	Logger    LoggerConfig   `mapstructure:"logger"`
}

// DatabaseConfig contains MySQL connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// TaskConfig contains the two periodic task intervals, in seconds
type TaskConfig struct {
	PersistenceInterval int `mapstructure:"persistence_interval"`
	RefreshingInterval  int `mapstructure:"refreshing_interval"`
}

// APIConfig contains the management REST server settings
type APIConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// BACnetConfig contains BACnet/IP transport settings
type BACnetConfig struct {
	Port int `mapstructure:"port"`
}

// LoggerConfig contains logging settings
type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	LogDir string `mapstructure:"log_dir"`
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("xbacnet")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		v.AddConfigPath(getConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; using defaults
	}

	// Override with environment variables (XBACNET_DB_HOST, ...).
	// The two interval knobs are also recognized under their legacy
	// upper-case names PERSISTENCE_INTERVAL / REFRESHING_INTERVAL.
	v.SetEnvPrefix("XBACNET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if iv := os.Getenv("PERSISTENCE_INTERVAL"); iv != "" {
		v.Set("persistence_interval", iv)
	}
	if iv := os.Getenv("REFRESHING_INTERVAL"); iv != "" {
		v.Set("refreshing_interval", iv)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the required options. A broken configuration is fatal
// at startup; nothing here is recoverable at runtime.
func (c *Config) Validate() error {
	if c.DeviceINI == "" {
		return fmt.Errorf("config: device_ini is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("config: db.host is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("config: db.user is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("config: db.database is required")
	}
	if c.Tasks.PersistenceInterval < 1 {
		return fmt.Errorf("config: persistence_interval must be an integer >= 1, got %d", c.Tasks.PersistenceInterval)
	}
	if c.Tasks.RefreshingInterval < 1 {
		return fmt.Errorf("config: refreshing_interval must be an integer >= 1, got %d", c.Tasks.RefreshingInterval)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device_ini", "")

	v.SetDefault("db.host", "")
	v.SetDefault("db.port", 3306)
	v.SetDefault("db.user", "")
	v.SetDefault("db.password", "")
	v.SetDefault("db.database", "")

	v.SetDefault("persistence_interval", 60)
	v.SetDefault("refreshing_interval", 60)

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8000)
	v.SetDefault("api.jwt_secret", "")

	v.SetDefault("bacnet.port", 47808)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.log_dir", "./logs")
}

func getConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".xbacnet")
}
