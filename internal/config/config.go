package config

import "time"

// Storage backend names.
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	// Storage selects the durable backend: "file" or "sqlite".
	Storage      string `mapstructure:"storage" yaml:"storage"`
	DataFile     string `mapstructure:"data_file" yaml:"data_file"`
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	// SaveDebounce is the quiet period before mutations reach disk.
	SaveDebounce time.Duration `mapstructure:"save_debounce" yaml:"save_debounce"`

	// PingInterval/PingTimeout drive the liveness probe of each websocket
	// connection. A connection that misses a ping is torn down so it cannot
	// hold a roster slot indefinitely.
	PingInterval time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	PingTimeout  time.Duration `mapstructure:"ping_timeout" yaml:"ping_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		Storage:           StorageFile,
		DataFile:          "data/database.json",
		DatabasePath:      "data/roomcast.db",
		SaveDebounce:      time.Second,
		PingInterval:      30 * time.Second,
		PingTimeout:       10 * time.Second,
	}
}
