package config

import (
	"time"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Storage   StorageConfig   `yaml:"storage"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Watcher   WatcherConfig   `yaml:"watcher"`
	Wake      WakeConfig      `yaml:"wake"`
	Session   SessionConfig   `yaml:"session"`
}

// ServerConfig drives the local control surface the UI shell talks to.
type ServerConfig struct {
	IP    string     `yaml:"ip"`
	Port  int        `yaml:"port"`
	Token string     `yaml:"token"`
	Auth  AuthConfig `yaml:"auth"`
}

type AuthConfig struct {
	Enabled     bool          `yaml:"enabled"`
	TokenExpiry time.Duration `yaml:"token_expiry"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

// StorageConfig parameterizes every persisted path so nothing is bound at
// compile time.
type StorageConfig struct {
	DataDir      string            `yaml:"data_dir"`
	ProfilePath  string            `yaml:"profile_path"`
	DatabasePath string            `yaml:"database_path"`
	Registration RegistrationStore `yaml:"registration"`
}

type RegistrationStore struct {
	Driver string           `yaml:"driver"` // sqlite (default) or redis
	Redis  RedisStoreConfig `yaml:"redis,omitempty"`
}

type RedisStoreConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

type DiscoveryConfig struct {
	Port             int           `yaml:"port"`
	ScanTimeout      time.Duration `yaml:"scan_timeout"`
	ScanInterval     time.Duration `yaml:"scan_interval"`
	EnableWakeOnLAN  bool          `yaml:"enable_wol"`
	LocalNetworkOnly bool          `yaml:"local_network_only"`
}

type WatcherConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	MaxBackoff   time.Duration `yaml:"max_backoff"`
}

type WakeConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	ProbeDelay time.Duration `yaml:"probe_delay"`
	ProbeEvery time.Duration `yaml:"probe_every"`
}

type SessionConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ControlPort    int           `yaml:"control_port"`
	StreamPort     int           `yaml:"stream_port"`
	SenkushaPort   int           `yaml:"senkusha_port"`
}
