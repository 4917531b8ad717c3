// Package simstate persists the paper trading wallet between runs.
package simstate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gridbot/internal/domain"
)

// Store keeps one JSON file per pair.
type Store struct {
	path string
}

// NewStore creates a store for the pair under dir.
func NewStore(dir string, pair domain.Pair) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create simulate state dir")
	}

	name := strings.ToLower(pair.String()) + ".json"
	return &Store{path: filepath.Join(dir, name)}, nil
}

// State wallet snapshot. Open orders are never persisted, the bot liquidates
// them on shutdown.
type State struct {
	Pair   string            `json:"pair"`
	Wallet map[string]string `json:"wallet"`
}

// NewState encodes free amounts per asset.
func NewState(pair domain.Pair, wallet map[string]decimal.Decimal) State {
	encoded := make(map[string]string, len(wallet))
	for asset, amount := range wallet {
		encoded[asset] = amount.String()
	}
	return State{Pair: pair.String(), Wallet: encoded}
}

// Amounts decodes the wallet.
func (s State) Amounts() (map[string]decimal.Decimal, error) {
	wallet := make(map[string]decimal.Decimal, len(s.Wallet))
	for asset, raw := range s.Wallet {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "decode %s amount", asset)
		}
		wallet[asset] = amount
	}
	return wallet, nil
}

// Load reads the snapshot, nil when nothing was saved yet.
func (s *Store) Load() (*State, error) {
	if s == nil {
		return nil, nil
	}

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read simulate state")
	}
	if len(payload) == 0 {
		return nil, nil
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Wrap(err, "decode simulate state")
	}

	return &state, nil
}

// Save writes the snapshot atomically via temp file.
func (s *Store) Save(state State) error {
	if s == nil {
		return nil
	}

	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode simulate state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write simulate state temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist simulate state")
	}

	return nil
}
