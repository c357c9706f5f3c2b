// Package config loads the stagefundd daemon configuration from
// STAGEFUND_* environment variables.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/blockberries/stagefund/types"
)

// Config is the daemon configuration.
type Config struct {
	// gRPC address the host connects to.
	ListenAddr string `env:"STAGEFUND_LISTEN_ADDR" envDefault:"127.0.0.1:26658"`
	// Directory of the committed-state database.
	DataDir string `env:"STAGEFUND_DATA_DIR" envDefault:"data"`
	// SQLite event mirror. Empty disables the mirror.
	MirrorPath string `env:"STAGEFUND_MIRROR_PATH"`
	// Committed heights kept in the state database. 0 keeps all.
	RetainBlocks uint64 `env:"STAGEFUND_RETAIN_BLOCKS" envDefault:"0"`
	// Committed events served by /events. 0 keeps all.
	EventRetain int `env:"STAGEFUND_EVENT_RETAIN" envDefault:"10000"`

	LogLevel  string `env:"STAGEFUND_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"STAGEFUND_LOG_FORMAT" envDefault:"json"`

	Governance Governance
}

// Governance holds the parameters used when the genesis document
// carries none.
type Governance struct {
	VotingPeriod time.Duration `env:"STAGEFUND_VOTING_PERIOD" envDefault:"72h"`
	QuorumBps    uint32        `env:"STAGEFUND_QUORUM_BPS" envDefault:"5000"`
	MaxDefeats   uint32        `env:"STAGEFUND_MAX_DEFEATS" envDefault:"3"`
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the configuration.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks fields env parsing cannot.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return errors.New("STAGEFUND_LISTEN_ADDR is required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("STAGEFUND_DATA_DIR is required")
	}
	if c.EventRetain < 0 {
		return errors.New("STAGEFUND_EVENT_RETAIN cannot be negative")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "STAGEFUND_LOG_LEVEL")
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return errors.Errorf("STAGEFUND_LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}
	if err := c.Params().Validate(); err != nil {
		return errors.Wrap(err, "governance params")
	}
	return nil
}

// Params converts the governance settings.
func (c Config) Params() types.GovernanceParams {
	return types.GovernanceParams{
		VotingPeriod: types.DurationFromGo(c.Governance.VotingPeriod),
		QuorumBps:    c.Governance.QuorumBps,
		MaxDefeats:   c.Governance.MaxDefeats,
	}
}

// StateDir is where the committed-state database lives.
func (c Config) StateDir() string {
	return filepath.Join(c.DataDir, "state")
}

// Logger builds the daemon logger writing to w, or stdout if w is nil.
func (c Config) Logger(w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if c.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("service", "stagefundd").Logger()
}
