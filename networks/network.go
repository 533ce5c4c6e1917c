// Package networks holds the trusted configuration of known networks: the DER
// encoded root key certificates are checked against and the API hosts.
package networks

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/colorfulnotion/icagent/bls"
	"github.com/colorfulnotion/icagent/common"
)

//go:embed *.json
var configFS embed.FS

var networkFile = map[string]string{
	"ic":    "ic.json",
	"local": "local.json", // a local replica generates its root key at startup
}

var ErrNoRootKey = errors.New("network has no root key configured")

type Network struct {
	ID       string
	RootKey  []byte
	APIHosts []string
}

type networkJSON struct {
	ID       string   `json:"id"`
	RootKey  string   `json:"root_key"`
	APIHosts []string `json:"api_hosts"`
}

func (n Network) MarshalJSON() ([]byte, error) {
	rootKey := ""
	if len(n.RootKey) > 0 {
		rootKey = common.Bytes2Hex(n.RootKey)[2:]
	}
	return json.Marshal(networkJSON{ID: n.ID, RootKey: rootKey, APIHosts: n.APIHosts})
}

func (n *Network) UnmarshalJSON(data []byte) error {
	var tmp networkJSON
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	n.ID = tmp.ID
	n.APIHosts = tmp.APIHosts
	n.RootKey = nil
	if tmp.RootKey != "" {
		key, err := common.DecodeHex(tmp.RootKey)
		if err != nil {
			return fmt.Errorf("root_key: %w", err)
		}
		n.RootKey = key
	}
	return nil
}

// ReadNetwork returns a known network by id, or reads id as a path to a
// network file.
func ReadNetwork(id string) (*Network, error) {
	var data []byte
	var err error
	if path, ok := networkFile[id]; ok {
		data, err = configFS.ReadFile(path)
	} else {
		data, err = os.ReadFile(id)
	}
	if err != nil {
		return nil, err
	}
	var n Network
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("network %s: %w", id, err)
	}
	return &n, nil
}

// TrustedRootKey returns the root key after checking its DER form.
func (n *Network) TrustedRootKey() ([]byte, error) {
	if len(n.RootKey) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRootKey, n.ID)
	}
	if _, err := bls.UnwrapDER(n.RootKey); err != nil {
		return nil, err
	}
	return n.RootKey, nil
}

// Known lists the ids of the embedded networks.
func Known() []string {
	return []string{"ic", "local"}
}
