// Package config loads the launcher configuration: built-in defaults, a TOML
// config file, and a few environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// DefaultPath is the config file location used when no -config flag is given.
// A missing file there is not an error; the defaults apply.
const DefaultPath = "/etc/oe-zdoom/config.toml"

// Defaults matching every cooperating kiosk image.
const (
	DefaultZDoom = "zdoom"
	DefaultMPWAD = "freedm.wad"
	DefaultMPMap = "MAP01"
	DefaultSPWAD = "freedoom1.wad"
	DefaultPort  = 5029
	DefaultWait  = 30 * time.Second
)

// Config is the full launcher configuration.
type Config struct {
	// ZDoom is the game binary to spawn.
	ZDoom        string
	Multiplayer  Multiplayer
	Singleplayer Singleplayer
}

// Multiplayer configures hosted and joined sessions.
type Multiplayer struct {
	WAD    string
	Map    string
	Config string
	// CanHost controls whether this kiosk may ever win the election.
	CanHost bool
	Port    int
	// Wait is the quorum wait: the debounce delay after the last membership
	// change before the election decision is evaluated.
	Wait time.Duration
}

// Singleplayer configures the fallback solo session.
type Singleplayer struct {
	WAD    string
	Config string
}

// Env holds environment overrides, applied after the config file.
type Env struct {
	LogLevel   slog.Level `env:"DOOM_LAUNCHER_LOG_LEVEL" envDefault:"INFO"`
	ConfigPath string     `env:"DOOM_LAUNCHER_CONFIG"`
	ZDoom      string     `env:"DOOM_LAUNCHER_ZDOOM"`
}

// ParseEnv reads the environment overrides.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse environment: %w", err)
	}
	return e, nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ZDoom: DefaultZDoom,
		Multiplayer: Multiplayer{
			WAD:     DefaultMPWAD,
			Map:     DefaultMPMap,
			CanHost: true,
			Port:    DefaultPort,
			Wait:    DefaultWait,
		},
		Singleplayer: Singleplayer{
			WAD: DefaultSPWAD,
		},
	}
}

// config.toml key mapping. Only keys present in the file override defaults.
type fileConfig struct {
	ZDoom        string           `toml:"zdoom"`
	Multiplayer  fileMultiplayer  `toml:"multiplayer"`
	Singleplayer fileSingleplayer `toml:"singleplayer"`
}

type fileMultiplayer struct {
	WAD     string `toml:"wad"`
	Map     string `toml:"map"`
	Config  string `toml:"config"`
	CanHost bool   `toml:"can-host"`
	Port    int    `toml:"port"`
	Wait    int    `toml:"wait"` // seconds
}

type fileSingleplayer struct {
	WAD    string `toml:"wad"`
	Config string `toml:"config"`
}

// Load reads the config file at path and overlays it onto the defaults.
// The default path is best-effort: any failure there falls back to the
// defaults, a kiosk must come up even with a broken config on disk. An
// explicitly given path must load cleanly.
func Load(path string, explicit bool) (Config, error) {
	cfg, err := load(path)
	if err != nil {
		if explicit {
			return Config{}, err
		}
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("cannot load config, using defaults",
				slog.String("path", path),
				slog.Any("error", err))
		}
		return Default(), nil
	}
	return cfg, nil
}

func load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}

	if meta.IsDefined("zdoom") {
		cfg.ZDoom = raw.ZDoom
	}
	if meta.IsDefined("multiplayer", "wad") {
		cfg.Multiplayer.WAD = raw.Multiplayer.WAD
	}
	if meta.IsDefined("multiplayer", "map") {
		cfg.Multiplayer.Map = raw.Multiplayer.Map
	}
	if meta.IsDefined("multiplayer", "config") {
		cfg.Multiplayer.Config = raw.Multiplayer.Config
	}
	if meta.IsDefined("multiplayer", "can-host") {
		cfg.Multiplayer.CanHost = raw.Multiplayer.CanHost
	}
	if meta.IsDefined("multiplayer", "port") {
		cfg.Multiplayer.Port = raw.Multiplayer.Port
	}
	if meta.IsDefined("multiplayer", "wait") {
		cfg.Multiplayer.Wait = time.Duration(raw.Multiplayer.Wait) * time.Second
	}
	if meta.IsDefined("singleplayer", "wad") {
		cfg.Singleplayer.WAD = raw.Singleplayer.WAD
	}
	if meta.IsDefined("singleplayer", "config") {
		cfg.Singleplayer.Config = raw.Singleplayer.Config
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.ZDoom == "" {
		return errors.New("zdoom binary must not be empty")
	}
	if c.Multiplayer.Port <= 0 || c.Multiplayer.Port > 65535 {
		return fmt.Errorf("invalid multiplayer port %d", c.Multiplayer.Port)
	}
	if c.Multiplayer.Wait <= 0 {
		return fmt.Errorf("invalid multiplayer wait %s", c.Multiplayer.Wait)
	}
	if c.Multiplayer.WAD == "" {
		return errors.New("multiplayer wad must not be empty")
	}
	if c.Singleplayer.WAD == "" {
		return errors.New("singleplayer wad must not be empty")
	}
	return nil
}
