package ohlcvconfig

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"upbit_ingestor/pkg/cache"
	"upbit_ingestor/pkg/database"
)

const (
	envAppConfigPath     = "OHLCV_APP_CONFIG_PATH"
	defaultAppConfigName = "application"
)

// AppSettings holds the server/database/cache wiring that sits below the
// ingestion domain, mirroring the teacher's top-level Config shape but
// trimmed to what the ingest daemon actually uses.
type AppSettings struct {
	Server   ServerConfig `mapstructure:"server"`
	Database struct {
		MasterDatasource struct {
			User     string `mapstructure:"user"`
			Password string `mapstructure:"password"`
			Host     string `mapstructure:"host"`
			Name     string `mapstructure:"name"`
		} `mapstructure:"masterDatasource"`
		MaxIdleConnections    int           `mapstructure:"maxIdleConnections"`
		MaxOpenConnections    int           `mapstructure:"maxOpenConnections"`
		MaxConnectionLifeTime time.Duration `mapstructure:"maxConnectionLifetime"`
		MaxConnectionIdleTime time.Duration `mapstructure:"maxConnectionIdletime"`
		DisableTLS            bool          `mapstructure:"disableTLS"`
		Debug                 bool          `mapstructure:"debug"`
	} `mapstructure:"database"`
	Cache struct {
		Redis cache.RedisConfig `mapstructure:"redis"`
		InMem cache.InMemConfig `mapstructure:"inmem"`
	} `mapstructure:"cache"`
}

// ServerConfig is the HTTP consumer surface's listen configuration.
type ServerConfig struct {
	Port         string `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`
	WriteTimeout int    `mapstructure:"writeTimeout"`
}

// LoadAppSettings reads server/database/cache settings from
// config/application.yml (or OHLCV_APP_CONFIG_PATH if set).
func LoadAppSettings() (*AppSettings, error) {
	v := viper.New()
	if path := os.Getenv(envAppConfigPath); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(defaultAppConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath("config")
		v.AddConfigPath(".")
	}

	v.SetDefault("server.port", "8090")
	v.SetDefault("server.readTimeout", 15)
	v.SetDefault("server.writeTimeout", 15)
	v.SetDefault("database.disableTLS", true)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "failed to read application config")
	}

	var settings AppSettings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal application config")
	}
	return &settings, nil
}

// DatabaseConfig converts the loaded database section into database.Config,
// keeping the two structs decoupled the way the teacher's own
// config.LoadDatabase separates YAML shape from the database package's
// connection config.
func (s *AppSettings) DatabaseConfig() (database.Config, error) {
	var cfg database.Config
	cfg.MasterDataSource = database.MasterDs{
		User:     s.Database.MasterDatasource.User,
		Password: s.Database.MasterDatasource.Password,
		Host:     s.Database.MasterDatasource.Host,
		DBName:   s.Database.MasterDatasource.Name,
	}
	cfg.MaxIdleConnections = s.Database.MaxIdleConnections
	cfg.MaxOpenConnections = s.Database.MaxOpenConnections
	cfg.MaxConnectionLifeTime = s.Database.MaxConnectionLifeTime
	cfg.MaxConnectionIdleTime = s.Database.MaxConnectionIdleTime
	cfg.DisableTLS = s.Database.DisableTLS
	cfg.Debug = s.Database.Debug
	return cfg, nil
}
