// Command keygen implements generate-validator-registry: it derives a fresh
// validator registry and writes the three keystore documents from spec §6
// (validators.yaml, validator-keys-manifest.yaml, config.yaml) plus one
// private-key JSON per validator, grounded on
// original_source/bin/ream/src/cli/generate_validator_registry.rs and
// original_source/crates/crypto/keystore/src/lean_keystore.rs's
// ValidatorRegistry/ValidatorKeysManifest/ConfigFile document shapes.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/geanlabs/gean/sig"
)

func main() {
	output := flag.String("output", ".", "Output directory for the registry documents and private keys.")
	numberOfNodes := flag.Uint64("number-of-nodes", 1, "Number of logical nodes to distribute validators across.")
	validatorsPerNode := flag.Uint64("number-of-validators-per-node", 1, "Number of validators assigned to each node.")
	flag.Parse()

	if err := run(*output, *numberOfNodes, *validatorsPerNode); err != nil {
		fmt.Fprintf(os.Stderr, "keygen: %v\n", err)
		os.Exit(1)
	}
}

func run(outputDir string, numberOfNodes, validatorsPerNode uint64) error {
	if numberOfNodes == 0 || validatorsPerNode == 0 {
		return fmt.Errorf("number-of-nodes and number-of-validators-per-node must both be >= 1")
	}
	numValidators := numberOfNodes * validatorsPerNode

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	const scheme = sig.LifetimeTest
	height := scheme.Height()
	numActiveEpochs := uint64(1) << uint(height)

	manifest := validatorKeysManifest{
		KeyScheme:       "SIGWinternitzMerkleLifetime" + fmt.Sprint(numActiveEpochs),
		HashFunction:    "blake3",
		Encoding:        "hex",
		Lifetime:        numActiveEpochs,
		LogNumActiveEps: uint64(height),
		NumActiveEps:    numActiveEpochs,
		NumValidators:   numValidators,
	}
	registry := validatorRegistry{Nodes: make(map[string][]uint64, numberOfNodes)}
	configFile := configDocument{
		GenesisTime:   uint64(time.Now().Unix()) + 60,
		NumValidators: numValidators,
	}

	var index uint64
	for node := uint64(0); node < numberOfNodes; node++ {
		nodeID := fmt.Sprintf("gean_%d", node)
		indices := make([]uint64, 0, validatorsPerNode)

		for i := uint64(0); i < validatorsPerNode; i++ {
			var seed [32]byte
			seed[0] = byte(index)
			seed[1] = byte(index >> 8)
			seed[2] = byte(index >> 16)
			seed[3] = byte(index >> 24)

			pub, priv, err := sig.KeyGen(seed, 0, numActiveEpochs, scheme)
			if err != nil {
				return fmt.Errorf("keygen validator %d: %w", index, err)
			}

			privFile := fmt.Sprintf("%d.json", index)
			if err := sig.SavePrivateKey(priv, filepath.Join(outputDir, privFile)); err != nil {
				return fmt.Errorf("save private key %d: %w", index, err)
			}

			pubBytes := pub.Bytes()
			pubHex := "0x" + hex.EncodeToString(pubBytes[:])
			manifest.Validators = append(manifest.Validators, validatorKeystoreRaw{
				Index:       index,
				PubkeyHex:   pubHex,
				PrivkeyFile: privFile,
			})
			configFile.GenesisValidators = append(configFile.GenesisValidators, pubHex)

			indices = append(indices, index)
			index++
		}

		registry.Nodes[nodeID] = indices
	}

	if err := writeYAML(filepath.Join(outputDir, "validators.yaml"), registry); err != nil {
		return err
	}
	if err := writeYAML(filepath.Join(outputDir, "validator-keys-manifest.yaml"), manifest); err != nil {
		return err
	}
	if err := writeYAML(filepath.Join(outputDir, "config.yaml"), configFile); err != nil {
		return err
	}

	fmt.Printf("generated %d validators across %d nodes in %s\n", numValidators, numberOfNodes, outputDir)
	return nil
}

// validatorRegistry is validators.yaml: node id -> ordered validator indices.
type validatorRegistry struct {
	Nodes map[string][]uint64 `yaml:",inline"`
}

// validatorKeysManifest is validator-keys-manifest.yaml.
type validatorKeysManifest struct {
	KeyScheme       string                  `yaml:"key_scheme"`
	HashFunction    string                  `yaml:"hash_function"`
	Encoding        string                  `yaml:"encoding"`
	Lifetime        uint64                  `yaml:"lifetime"`
	LogNumActiveEps uint64                  `yaml:"log_num_active_epochs"`
	NumActiveEps    uint64                  `yaml:"num_active_epochs"`
	NumValidators   uint64                  `yaml:"num_validators"`
	Validators      []validatorKeystoreRaw `yaml:"validators"`
}

type validatorKeystoreRaw struct {
	Index       uint64 `yaml:"index"`
	PubkeyHex   string `yaml:"pubkey_hex"`
	PrivkeyFile string `yaml:"privkey_file"`
}

// configDocument is config.yaml, matching config.GenesisConfig's yaml tags.
type configDocument struct {
	GenesisTime       uint64   `yaml:"GENESIS_TIME"`
	NumValidators     uint64   `yaml:"NUM_VALIDATORS"`
	GenesisValidators []string `yaml:"GENESIS_VALIDATORS"`
}

func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
