// Package config loads the kaoribot configuration: the reusable core
// settings plus bot, database, session and feature sections.
package config

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/kaoribot/core/config"
	coredatabase "github.com/m3rciful/kaoribot/core/database"
)

// BotConfig holds command parsing and privilege settings.
type BotConfig struct {
	Prefix   string  `yaml:"prefix" envconfig:"BOT_PREFIX"`
	Username string  `yaml:"username" envconfig:"BOT_USERNAME"`
	DevIDs   []int64 `yaml:"dev_ids" envconfig:"BOT_DEV_IDS"`
}

// SessionsConfig holds the deadlines of interactive sessions.
type SessionsConfig struct {
	CaptchaJoin time.Duration `yaml:"captcha_join" envconfig:"SESSION_CAPTCHA_JOIN" validate:"gte=0"`
	Captcha     time.Duration `yaml:"captcha" envconfig:"SESSION_CAPTCHA" validate:"gte=0"`
	Turn        time.Duration `yaml:"turn" envconfig:"SESSION_TURN" validate:"gte=0"`
}

// PokemonConfig controls the Who's That Pokemon job.
type PokemonConfig struct {
	Enabled bool            `yaml:"enabled" envconfig:"POKEMON_ENABLED"`
	APIURL  string          `yaml:"api_url" envconfig:"POKEMON_API_URL" validate:"omitempty,url"`
	Delays  []time.Duration `yaml:"delays" envconfig:"POKEMON_DELAYS"`
	Answer  time.Duration   `yaml:"answer" envconfig:"POKEMON_ANSWER" validate:"gte=0"`
	MaxID   int             `yaml:"max_id" envconfig:"POKEMON_MAX_ID" validate:"gte=0"`
	Reward  int64           `yaml:"reward" envconfig:"POKEMON_REWARD" validate:"gte=0"`
}

// Config aggregates everything the bot reads at startup.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Bot      BotConfig           `yaml:"bot"`
	Database coredatabase.Config `yaml:"database"`
	Sessions SessionsConfig      `yaml:"sessions"`
	Pokemon  PokemonConfig       `yaml:"pokemon"`
}

// CoreConfig exposes the embedded core section.
func (c *Config) CoreConfig() *coreconfig.Config { return &c.Config }

// Load reads the YAML file at path overlaid by the environment, fills
// defaults and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	if err := coreconfig.Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize applies the core defaults and then the bot's own.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}
	cfg.Database.Normalize()

	cfg.Bot.Prefix = strings.TrimSpace(cfg.Bot.Prefix)
	if cfg.Bot.Prefix == "" {
		cfg.Bot.Prefix = "/"
	}
	if strings.ContainsAny(cfg.Bot.Prefix, " \t\n") {
		return fmt.Errorf("bot.prefix must not contain whitespace")
	}
	cfg.Bot.Username = strings.TrimPrefix(strings.TrimSpace(cfg.Bot.Username), "@")

	if cfg.Sessions.CaptchaJoin <= 0 {
		cfg.Sessions.CaptchaJoin = 3 * time.Minute
	}
	if cfg.Sessions.Captcha <= 0 {
		cfg.Sessions.Captcha = 180 * time.Second
	}
	if cfg.Sessions.Turn <= 0 {
		cfg.Sessions.Turn = 60 * time.Second
	}

	if cfg.Pokemon.APIURL == "" {
		cfg.Pokemon.APIURL = "https://pokeapi.co/api/v2"
	}
	cfg.Pokemon.APIURL = strings.TrimRight(cfg.Pokemon.APIURL, "/")
	if len(cfg.Pokemon.Delays) == 0 {
		cfg.Pokemon.Delays = []time.Duration{20 * time.Minute, 30 * time.Minute, 40 * time.Minute}
	}
	for _, d := range cfg.Pokemon.Delays {
		if d <= 0 {
			return fmt.Errorf("pokemon.delays must be positive, got %s", d)
		}
	}
	if cfg.Pokemon.Answer <= 0 {
		cfg.Pokemon.Answer = 60 * time.Second
	}
	if cfg.Pokemon.MaxID <= 0 {
		cfg.Pokemon.MaxID = 1025
	}
	if cfg.Pokemon.Reward <= 0 {
		cfg.Pokemon.Reward = 50
	}
	return nil
}

// IsDev reports whether id belongs to a bot developer.
func (c BotConfig) IsDev(id int64) bool {
	for _, d := range c.DevIDs {
		if d == id {
			return true
		}
	}
	return false
}
