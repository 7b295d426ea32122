package config

import "time"

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:   "127.0.0.1",
			Port: 8090,
			Auth: AuthConfig{
				Enabled:     false,
				TokenExpiry: 24 * time.Hour,
			},
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "data/logs",
			File:  "vitarp.log",
		},
		Storage: StorageConfig{
			DataDir:      "data",
			ProfilePath:  "data/profile.json",
			DatabasePath: "data/vitarp.db",
			Registration: RegistrationStore{
				Driver: "sqlite",
			},
		},
		Discovery: DiscoveryConfig{
			Port:             987,
			ScanTimeout:      5 * time.Second,
			ScanInterval:     time.Second,
			EnableWakeOnLAN:  true,
			LocalNetworkOnly: true,
		},
		Watcher: WatcherConfig{
			PollInterval: 3 * time.Second,
			ProbeTimeout: time.Second,
			MaxBackoff:   30 * time.Second,
		},
		Wake: WakeConfig{
			Timeout:    15 * time.Second,
			ProbeDelay: 3 * time.Second,
			ProbeEvery: 2 * time.Second,
		},
		Session: SessionConfig{
			ConnectTimeout: 15 * time.Second,
			ControlPort:    9295,
			StreamPort:     9296,
			SenkushaPort:   9302,
		},
	}
}
