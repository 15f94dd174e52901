package engine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/talgya/agora/internal/agents"
)

// Config is the process-wide simulation configuration, threaded through
// construction. There is no ambient global state: everything an agent or
// scheduler needs arrives through here.
type Config struct {
	// Workers is the scheduler's worker count. 0 or 1 runs fully serial
	// (deterministic and debuggable); higher values shard agents
	// statically across that many goroutines.
	Workers int `yaml:"workers"`

	// Seed drives every random draw. 0 seeds from crypto/rand; the
	// effective seed is logged so the run can be replayed. Draws are
	// derived per agent, so results do not depend on Workers.
	Seed uint64 `yaml:"seed"`

	// TradeLogging is "individual", "group", or "off".
	TradeLogging string `yaml:"trade_logging"`

	// CheckLostMessages makes Finish fail if any agent still holds
	// unread messages or unanswered offers, catching models that forget
	// to drain a topic they send to.
	CheckLostMessages bool `yaml:"check_lost_messages"`
}

// LoadConfig reads a Config from a YAML file.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// tradeMode resolves the trade-logging mode, defaulting to individual.
func (c Config) tradeMode() (agents.TradeLogging, error) {
	switch c.TradeLogging {
	case "", "individual":
		return agents.TradeLogIndividual, nil
	case "group":
		return agents.TradeLogGroup, nil
	case "off":
		return agents.TradeLogOff, nil
	}
	return 0, fmt.Errorf("unknown trade_logging mode %q", c.TradeLogging)
}
