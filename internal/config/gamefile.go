package config

import (
	"encoding/json"
	"fmt"
	mathrand "math/rand"
	"os"
	"time"

	"wealthsim/internal/game"
	"wealthsim/internal/market"

	"gopkg.in/yaml.v3"
)

// GameFile is the optional preset for a classroom session.
type GameFile struct {
	Params  game.Params `json:"params" yaml:"params"`
	Assets  []string    `json:"assets,omitempty" yaml:"assets,omitempty"`
	Returns [][]float64 `json:"returns,omitempty" yaml:"returns,omitempty"`
	Seed    int64       `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// LoadGameFile reads a YAML (or JSON) preset. Parameters missing from the file
// keep the values in base.
func LoadGameFile(path string, base game.Params) (*GameFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read game file: %w", err)
	}

	gf := &GameFile{Params: base}
	if err := yaml.Unmarshal(data, gf); err != nil {
		gf = &GameFile{Params: base}
		if jerr := json.Unmarshal(data, gf); jerr != nil {
			return nil, fmt.Errorf("parse game file (tried YAML and JSON): %w", err)
		}
	}
	if err := gf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid game file: %w", err)
	}
	return gf, nil
}

func (g *GameFile) Validate() error {
	if err := g.Params.Validate(); err != nil {
		return err
	}
	if len(g.Returns) > 0 && len(g.Assets) == 0 {
		return fmt.Errorf("returns need an assets list")
	}
	if len(g.Assets) > 0 {
		if err := market.ValidateAssetNames(g.Assets); err != nil {
			return err
		}
	}
	if len(g.Returns) > 0 {
		if _, err := market.NewReturnTable(g.Assets, g.Returns); err != nil {
			return err
		}
	}
	return nil
}

// Table builds the starting return table: the preset returns when given,
// otherwise a random draw over the configured or default assets.
func (g *GameFile) Table() (market.ReturnTable, error) {
	assets := market.DefaultAssets
	if g != nil && len(g.Assets) > 0 {
		assets = g.Assets
	}
	if g != nil && len(g.Returns) > 0 {
		return market.NewReturnTable(assets, g.Returns)
	}
	seed := time.Now().UnixNano()
	if g != nil && g.Seed != 0 {
		seed = g.Seed
	}
	return market.RandomTable(mathrand.New(mathrand.NewSource(seed)), assets)
}

func (g *GameFile) SaveToFile(path string) error {
	data, err := yaml.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal game file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write game file: %w", err)
	}
	return nil
}
