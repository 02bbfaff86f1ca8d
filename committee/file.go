package committee

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tolelom/bftcore/crypto"
)

// authorityFile is the on-disk shape of one committee_file entry: a static,
// out-of-band-agreed validator list loaded at startup (§4.1).
type authorityFile struct {
	PublicKey string `json:"public_key"`
	Address   string `json:"address"`
	Stake     uint64 `json:"stake,omitempty"`
}

// LoadFile reads a JSON array of authorityFile entries from path and builds
// a Committee from them.
func LoadFile(path string) (*Committee, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("committee: read %s: %w", path, err)
	}
	var entries []authorityFile
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("committee: parse %s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("committee: %s lists no authorities", path)
	}

	authorities := make([]Authority, len(entries))
	for i, e := range entries {
		pub, err := crypto.PubKeyFromHex(e.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("committee: entry %d: %w", i, err)
		}
		if e.Address == "" {
			return nil, fmt.Errorf("committee: entry %d: address must not be empty", i)
		}
		authorities[i] = Authority{PublicKey: pub, Address: e.Address, Stake: e.Stake}
	}
	return New(authorities), nil
}
