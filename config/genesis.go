package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/geanlabs/gean/types"
)

// GenesisConfig is the config.yaml document from SPEC_FULL.md §6:
// {GENESIS_TIME, NUM_VALIDATORS, GENESIS_VALIDATORS}. Grounded on
// geanlabs-gean/internal/genesis/config.go, switched from JSON to YAML to
// match the keystore documents it's generated alongside (validators.yaml,
// validator-keys-manifest.yaml).
type GenesisConfig struct {
	GenesisTime       uint64   `yaml:"GENESIS_TIME"`
	NumValidators     uint64   `yaml:"NUM_VALIDATORS"`
	GenesisValidators []string `yaml:"GENESIS_VALIDATORS"`
}

// LoadGenesisConfig reads and parses a config.yaml document.
func LoadGenesisConfig(path string) (*GenesisConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read genesis config %s: %w", path, err)
	}
	var cfg GenesisConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse genesis config %s: %w", path, err)
	}
	if len(cfg.GenesisValidators) != int(cfg.NumValidators) {
		return nil, fmt.Errorf("config: NUM_VALIDATORS=%d but %d GENESIS_VALIDATORS listed", cfg.NumValidators, len(cfg.GenesisValidators))
	}
	return &cfg, nil
}

// ToValidators decodes the hex-encoded pubkeys into the registry ordered by
// index.
func (c *GenesisConfig) ToValidators() ([]types.Validator, error) {
	validators := make([]types.Validator, len(c.GenesisValidators))
	for i, hexStr := range c.GenesisValidators {
		pubkey, err := parseHexPubkey(hexStr)
		if err != nil {
			return nil, fmt.Errorf("config: validator %d pubkey: %w", i, err)
		}
		validators[i] = types.Validator{Pubkey: pubkey, Index: types.ValidatorIndex(i)}
	}
	return validators, nil
}

func parseHexPubkey(s string) (types.Pubkey, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 104 { // 52 bytes = 104 hex chars
		return types.Pubkey{}, fmt.Errorf("invalid pubkey length: got %d hex chars, want 104", len(s))
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return types.Pubkey{}, fmt.Errorf("decoding hex: %w", err)
	}
	var pubkey types.Pubkey
	copy(pubkey[:], decoded)
	return pubkey, nil
}

// GenerateGenesis builds the genesis state and block for the given
// validator registry, grounded on
// geanlabs-gean/consensus/genesis.go#GenerateGenesis, generalized from a
// validator count to the full ordered registry.
func GenerateGenesis(genesisTime uint64, validators []types.Validator) (*types.State, *types.Block, error) {
	emptyBody := types.BlockBody{}
	bodyRoot, err := emptyBody.HashTreeRoot()
	if err != nil {
		return nil, nil, fmt.Errorf("config: hash genesis body: %w", err)
	}

	genesisHeader := types.BlockHeader{
		Slot:     0,
		BodyRoot: bodyRoot,
	}
	genesisCheckpoint := types.Checkpoint{}

	state := &types.State{
		Config:            types.Config{GenesisTime: genesisTime},
		Slot:              0,
		LatestBlockHeader: genesisHeader,
		LatestJustified:   genesisCheckpoint,
		LatestFinalized:   genesisCheckpoint,
		Validators:        validators,
	}

	stateRoot, err := state.HashTreeRoot()
	if err != nil {
		return nil, nil, fmt.Errorf("config: hash genesis state: %w", err)
	}

	block := &types.Block{
		Slot:      0,
		StateRoot: stateRoot,
		Body:      emptyBody,
	}

	return state, block, nil
}

// CreateState is a convenience wrapper combining ToValidators and
// GenerateGenesis for a loaded GenesisConfig.
func (c *GenesisConfig) CreateState() (*types.State, *types.Block, error) {
	validators, err := c.ToValidators()
	if err != nil {
		return nil, nil, err
	}
	return GenerateGenesis(c.GenesisTime, validators)
}
