package config

import "time"

// ServerConfig holds the listener and file-backed collaborator
// settings (§6 "Config collaborator").
type ServerConfig struct {
	IP       string `mapstructure:"ip" yaml:"ip"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Name     string `mapstructure:"name" yaml:"name"`
	Owner    string `mapstructure:"owner" yaml:"owner"`
	Debug    bool   `mapstructure:"debug" yaml:"debug"`
	AuthFile string `mapstructure:"auth_file" yaml:"auth_file"`
	BanFile  string `mapstructure:"ban_file" yaml:"ban_file"`
	MotdFile string `mapstructure:"motd_file" yaml:"motd_file"`
	DBFile   string `mapstructure:"db_file" yaml:"db_file"`
	Password string `mapstructure:"password" yaml:"password"`

	// StatusAddr is the read-only status HTTP surface's listen address,
	// separate from the game port.
	StatusAddr string `mapstructure:"status_addr" yaml:"status_addr"`
}

// APIConfig holds the master-registry endpoint settings.
type APIConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	Key      string `mapstructure:"key" yaml:"key"`
}

// GameConfig holds the session limits advertised at admission.
type GameConfig struct {
	MaxPlayers int    `mapstructure:"max_players" yaml:"max_players"`
	Terrain    string `mapstructure:"terrain" yaml:"terrain"`
}

// Config holds server configuration values.
type Config struct {
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	API    APIConfig    `mapstructure:"api" yaml:"api"`
	Game   GameConfig   `mapstructure:"game" yaml:"game"`

	HeartbeatPeriod time.Duration `mapstructure:"heartbeat_period" yaml:"heartbeat_period"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			IP:         "0.0.0.0",
			Port:       12345,
			Name:       "rorelay server",
			AuthFile:   "authorizations.txt",
			BanFile:    "bans.txt",
			MotdFile:   "motd.txt",
			DBFile:     "rorelay.db",
			StatusAddr: ":8080",
		},
		Game: GameConfig{
			MaxPlayers: 64,
			Terrain:    "default.terrn2",
		},
		HeartbeatPeriod: 10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Server.IP != "" {
		c.Server.IP = other.Server.IP
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.Name != "" {
		c.Server.Name = other.Server.Name
	}
	if other.Server.Owner != "" {
		c.Server.Owner = other.Server.Owner
	}
	if other.Server.Debug {
		c.Server.Debug = true
	}
	if other.Server.AuthFile != "" {
		c.Server.AuthFile = other.Server.AuthFile
	}
	if other.Server.BanFile != "" {
		c.Server.BanFile = other.Server.BanFile
	}
	if other.Server.MotdFile != "" {
		c.Server.MotdFile = other.Server.MotdFile
	}
	if other.Server.DBFile != "" {
		c.Server.DBFile = other.Server.DBFile
	}
	if other.Server.Password != "" {
		c.Server.Password = other.Server.Password
	}
	if other.Server.StatusAddr != "" {
		c.Server.StatusAddr = other.Server.StatusAddr
	}
	if other.API.Endpoint != "" {
		c.API.Endpoint = other.API.Endpoint
	}
	if other.API.Key != "" {
		c.API.Key = other.API.Key
	}
	if other.Game.MaxPlayers != 0 {
		c.Game.MaxPlayers = other.Game.MaxPlayers
	}
	if other.Game.Terrain != "" {
		c.Game.Terrain = other.Game.Terrain
	}
	if other.HeartbeatPeriod != 0 {
		c.HeartbeatPeriod = other.HeartbeatPeriod
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
}
