package sig

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// privateKeyFile is the on-disk JSON shape for one validator's secret
// material, referenced by validator-keys-manifest.yaml's privkey_file
// field (spec.md §6).
type privateKeyFile struct {
	Seed            string `json:"seed"`
	ActivationEpoch uint64 `json:"activation_epoch"`
	NumActiveEpochs uint64 `json:"num_active_epochs"`
	Scheme          uint32 `json:"scheme"`
}

// SavePrivateKey writes priv to path as the JSON document described above,
// with owner-only permissions since it carries signing secrets.
func SavePrivateKey(priv *PrivateKey, path string) error {
	doc := privateKeyFile{
		Seed:            hex.EncodeToString(priv.Seed[:]),
		ActivationEpoch: priv.ActivationEpoch,
		NumActiveEpochs: priv.NumActiveEpochs,
		Scheme:          uint32(priv.SchemeTag),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("sig: marshal private key: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("sig: write private key to %s: %w", path, err)
	}
	return nil
}

// LoadPrivateKey reads a private key document written by SavePrivateKey.
func LoadPrivateKey(path string) (*PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sig: read private key from %s: %w", path, err)
	}
	var doc privateKeyFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("sig: unmarshal private key from %s: %w", path, err)
	}
	seedBytes, err := hex.DecodeString(doc.Seed)
	if err != nil || len(seedBytes) != 32 {
		return nil, fmt.Errorf("sig: invalid seed in %s", path)
	}
	priv := &PrivateKey{
		ActivationEpoch: doc.ActivationEpoch,
		NumActiveEpochs: doc.NumActiveEpochs,
		SchemeTag:       Scheme(doc.Scheme),
		used:            make(map[uint64]bool),
	}
	copy(priv.Seed[:], seedBytes)
	return priv, nil
}
