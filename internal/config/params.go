package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/curvex-trading/curvex/internal/filter"
)

// Params is the acquisition parameter file (config.json). Unlike the yaml
// service config it is meant to be edited while the process runs and is
// rewritten in normalized form whenever it is loaded or saved.
type Params struct {
	LamportAmount uint64     `json:"lamport_amount"`
	PriorityFee   uint64     `json:"priority_fee"`
	Slippage      float64    `json:"slippage"`
	Bribe         uint64     `json:"bribe"`
	UseLeaderSend bool       `json:"use_leader_send"`
	Filters       filter.Set `json:"filters"`
}

// DefaultParams returns conservative acquisition defaults.
func DefaultParams() Params {
	return Params{
		LamportAmount: 100_000_000, // 0.1 SOL
		PriorityFee:   100_000,
		Slippage:      0.15,
		Bribe:         1_000_000,
		UseLeaderSend: false,
		Filters:       filter.NewSet(),
	}
}

// LoadParams reads the params file at path. A missing or corrupt file is
// replaced with defaults; the file is rewritten in normalized form either
// way.
func LoadParams(path string) (Params, error) {
	params := DefaultParams()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		log.Info().Str("path", path).Msg("config: no params file, writing defaults")
	case err != nil:
		return params, fmt.Errorf("read params file: %w", err)
	default:
		if err := json.Unmarshal(data, &params); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("config: corrupt params file, resetting to defaults")
			params = DefaultParams()
		}
	}
	if params.Filters.Filters == nil {
		params.Filters = filter.NewSet()
	}

	if err := SaveParams(path, params); err != nil {
		return params, err
	}
	return params, nil
}

// SaveParams writes the params file in normalized form.
func SaveParams(path string, params Params) error {
	data, err := json.MarshalIndent(params, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write params file: %w", err)
	}
	return nil
}
