// Command agorasim runs the demo firms-and-households economy: each
// round households offer labor, firms hire and produce cookies with a
// Cobb-Douglas technology, sell them back, and households consume.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	opensimplex "github.com/ojrac/opensimplex-go"
	"gopkg.in/yaml.v3"

	"github.com/talgya/agora/internal/agents"
	"github.com/talgya/agora/internal/economy"
	"github.com/talgya/agora/internal/engine"
	"github.com/talgya/agora/internal/persistence"
)

const (
	goodLabor   agents.Good = "labor"
	goodCookies agents.Good = "cookies"
)

type modelConfig struct {
	Rounds       int     `yaml:"rounds"`
	Firms        int     `yaml:"firms"`
	Households   int     `yaml:"households"`
	DatabasePath string  `yaml:"database_path"`
	WagePrice    float64 `yaml:"wage"`
	CookiePrice  float64 `yaml:"cookie_price"`
}

type runConfig struct {
	Simulation engine.Config `yaml:"simulation"`
	Model      modelConfig   `yaml:"model"`
}

func defaultConfig() runConfig {
	return runConfig{
		Simulation: engine.Config{Seed: 42, TradeLogging: "individual"},
		Model: modelConfig{
			Rounds:       50,
			Firms:        5,
			Households:   50,
			DatabasePath: "data/agora.db",
			WagePrice:    1,
			CookiePrice:  1.5,
		},
	}
}

func loadConfig(path string) (runConfig, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// household state: which firm it works for this round.
type household struct {
	employer agents.Address
	utility  float64
}

func main() {
	configPath := flag.String("config", "", "path to YAML config (defaults apply when empty)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("configuration failed", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Model.DatabasePath), 0o755); err != nil {
		slog.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("simulation failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg runConfig) error {
	runID := uuid.New()
	sk, err := persistence.Open(cfg.Model.DatabasePath, runID.String())
	if err != nil {
		return err
	}
	sim, err := engine.NewRun(runID, cfg.Simulation, sk)
	if err != nil {
		sk.Close()
		return err
	}

	// Labor cannot be stored across rounds.
	sim.DeclarePerishable(goodLabor)

	// Endowment dispersion: a simplex noise field over the agent index
	// gives smooth heterogeneity instead of uniform or fully random
	// starting wealth.
	noise := opensimplex.NewNormalized(int64(cfg.Simulation.Seed))
	technology := economy.CobbDouglas{
		Output:     goodCookies,
		Multiplier: 2,
		Exponents:  map[agents.Good]float64{goodLabor: 0.7},
	}
	taste := economy.LogUtility{
		Weights: map[agents.Good]float64{goodCookies: 1},
	}
	wage := cfg.Model.WagePrice
	cookiePrice := cfg.Model.CookiePrice
	nFirms := cfg.Model.Firms
	nHouseholds := cfg.Model.Households

	firms, err := sim.BuildAgents("firm", nFirms, func(a *agents.Agent) {
		a.Inventory().Create(agents.Money, 60+40*noise.Eval2(float64(a.ID()), 0))

		a.RegisterAction("hire", func(a *agents.Agent) (any, error) {
			hired := 0.0
			for _, off := range a.GetOffers(goodLabor) {
				if _, err := a.Accept(off); err != nil {
					var short *agents.NotEnoughGoodsError
					if errors.As(err, &short) {
						// Out of money: hire what is affordable, skip the rest.
						affordable := a.Inventory().Have(agents.Money) / off.Price
						if _, err := a.AcceptQuantity(off, affordable); err != nil {
							a.Reject(off)
						}
						continue
					}
					return nil, err
				}
				hired += off.Quantity
			}
			return hired, nil
		})

		a.RegisterAction("produce", func(a *agents.Agent) (any, error) {
			labor := a.Inventory().NotReserved(goodLabor)
			out, err := a.Produce(technology, map[agents.Good]float64{goodLabor: labor})
			if err != nil {
				return nil, err
			}
			a.Log("produce", map[string]float64{
				"labor":   labor,
				"cookies": out[goodCookies],
			})
			return out[goodCookies], nil
		})

		a.RegisterAction("sell_cookies", func(a *agents.Agent) (any, error) {
			stock := a.Inventory().NotReserved(goodCookies)
			if stock <= 0 || nHouseholds == 0 {
				return 0.0, nil
			}
			slice := stock / float64(nHouseholds)
			for id := 0; id < nHouseholds; id++ {
				buyer := agents.Address{Group: "household", ID: id}
				if _, err := a.Sell(buyer, goodCookies, slice, cookiePrice, agents.Money); err != nil {
					var short *agents.NotEnoughGoodsError
					if errors.As(err, &short) {
						break
					}
					return nil, err
				}
			}
			return stock, nil
		})
	})
	if err != nil {
		return err
	}

	households, err := sim.BuildAgents("household", nHouseholds, func(a *agents.Agent) {
		a.State = &household{}
		a.Inventory().Create(agents.Money, 8+4*noise.Eval2(0, float64(a.ID())))

		a.RegisterAction("offer_labor", func(a *agents.Agent) (any, error) {
			hh := a.State.(*household)
			hh.employer = agents.Address{Group: "firm", ID: a.Rand().IntN(nFirms)}
			a.Inventory().Create(goodLabor, 1)
			if _, err := a.Sell(hh.employer, goodLabor, 1, wage, agents.Money); err != nil {
				return nil, err
			}
			return nil, nil
		})

		a.RegisterAction("shop", func(a *agents.Agent) (any, error) {
			bought := 0.0
			for _, off := range a.GetOffers(goodCookies) {
				budget := a.Inventory().Have(agents.Money)
				want := off.Quantity
				if want*off.Price > budget {
					want = budget / off.Price
				}
				got, err := a.AcceptQuantity(off, want)
				if err != nil {
					var short *agents.NotEnoughGoodsError
					if errors.As(err, &short) {
						a.Reject(off)
						continue
					}
					return nil, err
				}
				bought += got
			}
			return bought, nil
		})

		a.RegisterAction("consume", func(a *agents.Agent) (any, error) {
			hh := a.State.(*household)
			bundle := map[agents.Good]float64{
				goodCookies: a.Inventory().NotReserved(goodCookies),
			}
			u, err := a.Consume(taste, bundle)
			if err != nil {
				return nil, err
			}
			hh.utility = u
			a.Log("consume", map[string]float64{
				"utility": u,
				"cookies": bundle[goodCookies],
			})
			return u, nil
		})
	})
	if err != nil {
		return err
	}

	for t := 0; t < cfg.Model.Rounds; t++ {
		if err := sim.AdvanceRound(t); err != nil {
			return err
		}
		if _, err := households.Do("offer_labor"); err != nil {
			return err
		}
		if _, err := firms.Do("hire"); err != nil {
			return err
		}
		if _, err := firms.Do("produce"); err != nil {
			return err
		}
		if _, err := firms.Do("sell_cookies"); err != nil {
			return err
		}
		if _, err := households.Do("shop"); err != nil {
			return err
		}
		if _, err := households.Do("consume"); err != nil {
			return err
		}
		if err := firms.AggregateSnapshot(goodCookies, agents.Money); err != nil {
			return err
		}
		if err := households.AggregateSnapshot(goodCookies, agents.Money); err != nil {
			return err
		}
	}
	return sim.Finish()
}
