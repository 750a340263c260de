package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "opsengine.cfg.json"

// EnvPrefix prefixes environment overrides, e.g. OPSENGINE_SERVER_ADDRESS.
const EnvPrefix = "OPSENGINE"

// EngineConfig holds tick and derivation settings.
type EngineConfig struct {
	TickInterval       time.Duration
	SnapshotBuffer     int
	AlertBuffer        int
	HistoryWindow      int
	CollisionThreshold float64
	ProximityThreshold float64
	OverspeedLimit     float64
	Seed               uint64
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	Path         string
	DumpInterval time.Duration
	DumpPath     string
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	SSLMode  string
}

// MongoConfig holds MongoDB storage backend settings
type MongoConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// StorageConfig selects and configures the storage backend
type StorageConfig struct {
	Type     string
	Memory   MemoryConfig
	SQLite   SQLiteConfig
	Postgres PostgresConfig
	Mongo    MongoConfig
}

// ServerConfig holds HTTP and stream settings
type ServerConfig struct {
	Address        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	AllowedOrigins []string
}

// PredictorConfig holds the risk model client settings
type PredictorConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// InfluxConfig holds InfluxDB sink settings
type InfluxConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Protocol string
	Token    string
	Org      string
	Bucket   string
}

// RedisConfig holds Redis publisher settings
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	StateTTL time.Duration
}

// GraylogConfig holds GELF log shipping settings
type GraylogConfig struct {
	Enabled bool
	Address string
}

// OTelConfig holds OpenTelemetry configuration
type OTelConfig struct {
	Enabled        bool
	ServiceName    string
	BatchTimeout   time.Duration
	MetricInterval time.Duration
	Endpoint       string
	Insecure       bool
}

// MonitorConfig lists the sites forwarded to sinks
type MonitorConfig struct {
	Sites []string
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// SetDefaults registers default values and environment overrides.
func SetDefaults() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("engine.tickInterval", "1s")
	viper.SetDefault("engine.snapshotBuffer", 8)
	viper.SetDefault("engine.alertBuffer", 64)
	viper.SetDefault("engine.historyWindow", 200)
	viper.SetDefault("engine.collisionThreshold", 0.0003)
	viper.SetDefault("engine.proximityThreshold", 0.0008)
	viper.SetDefault("engine.overspeedLimit", 40.0)
	viper.SetDefault("engine.seed", 0)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./exports")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "./data/opsengine.db")
	viper.SetDefault("storage.mongo.uri", "mongodb://localhost:27017")
	viper.SetDefault("storage.mongo.database", "kavach")
	viper.SetDefault("storage.mongo.timeout", "10s")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "opsengine")
	viper.SetDefault("db.sslmode", "disable")

	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.readTimeout", "15s")
	viper.SetDefault("server.writeTimeout", "10s")
	viper.SetDefault("server.pingInterval", "30s")
	viper.SetDefault("server.allowedOrigins", []string{})

	viper.SetDefault("predictor.url", "http://localhost:5000")
	viper.SetDefault("predictor.apiKey", "")
	viper.SetDefault("predictor.timeout", "10s")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "kavach")
	viper.SetDefault("influx.bucket", "opsengine")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.stateTTL", "30s")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "opsengine")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.metricInterval", "30s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("monitor.sites", []string{})
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetEngineConfig returns the engine settings.
func GetEngineConfig() EngineConfig {
	return EngineConfig{
		TickInterval:       viper.GetDuration("engine.tickInterval"),
		SnapshotBuffer:     viper.GetInt("engine.snapshotBuffer"),
		AlertBuffer:        viper.GetInt("engine.alertBuffer"),
		HistoryWindow:      viper.GetInt("engine.historyWindow"),
		CollisionThreshold: viper.GetFloat64("engine.collisionThreshold"),
		ProximityThreshold: viper.GetFloat64("engine.proximityThreshold"),
		OverspeedLimit:     viper.GetFloat64("engine.overspeedLimit"),
		Seed:               viper.GetUint64("engine.seed"),
	}
}

// GetStorageConfig returns the storage backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetString("db.port"),
			Username: viper.GetString("db.username"),
			Password: viper.GetString("db.password"),
			Database: viper.GetString("db.database"),
			SSLMode:  viper.GetString("db.sslmode"),
		},
		Mongo: MongoConfig{
			URI:      viper.GetString("storage.mongo.uri"),
			Database: viper.GetString("storage.mongo.database"),
			Timeout:  viper.GetDuration("storage.mongo.timeout"),
		},
	}
}

// GetServerConfig returns the HTTP server settings.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Address:        viper.GetString("server.address"),
		ReadTimeout:    viper.GetDuration("server.readTimeout"),
		WriteTimeout:   viper.GetDuration("server.writeTimeout"),
		PingInterval:   viper.GetDuration("server.pingInterval"),
		AllowedOrigins: viper.GetStringSlice("server.allowedOrigins"),
	}
}

// GetPredictorConfig returns the risk model client settings.
func GetPredictorConfig() PredictorConfig {
	return PredictorConfig{
		URL:     viper.GetString("predictor.url"),
		APIKey:  viper.GetString("predictor.apiKey"),
		Timeout: viper.GetDuration("predictor.timeout"),
	}
}

// GetInfluxConfig returns the InfluxDB sink settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetRedisConfig returns the Redis publisher settings.
func GetRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:  viper.GetBool("redis.enabled"),
		Addr:     viper.GetString("redis.addr"),
		Password: viper.GetString("redis.password"),
		DB:       viper.GetInt("redis.db"),
		StateTTL: viper.GetDuration("redis.stateTTL"),
	}
}

// GetGraylogConfig returns the GELF settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetOTelConfig returns the OpenTelemetry configuration from viper.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		BatchTimeout:   viper.GetDuration("otel.batchTimeout"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
	}
}

// GetMonitorConfig returns the sites forwarded to sinks.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Sites: viper.GetStringSlice("monitor.sites"),
	}
}
