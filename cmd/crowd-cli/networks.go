package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultNetwork = "local"

// Network routes CLI calls to the ledger serving one chain.
type Network struct {
	Name    string `yaml:"name"`
	ChainID uint64 `yaml:"chain_id"`
	RPCURL  string `yaml:"rpc_url"`
	Address string `yaml:"address"`
}

type networksFile struct {
	Default  string             `yaml:"default"`
	Networks map[string]Network `yaml:"networks"`
}

// builtinNetworks are known deployments. Entries without an RPC URL must be
// completed by a networks file or the --rpc flag.
func builtinNetworks() map[string]Network {
	return map[string]Network{
		"local":  {Name: "Local", ChainID: 31337, RPCURL: "http://127.0.0.1:8545"},
		"monad":  {Name: "Monad", ChainID: 10143},
		"somnia": {Name: "Somnia", ChainID: 50312},
		"pharos": {Name: "Pharos", ChainID: 688688},
		"mega":   {Name: "MegaETH", ChainID: 6342},
	}
}

type networkRegistry struct {
	defaultKey string
	networks   map[string]Network
}

// loadNetworks merges the builtin table with path. A missing file is not an
// error; fields set in the file override the builtin entry.
func loadNetworks(path string) (*networkRegistry, error) {
	reg := &networkRegistry{defaultKey: defaultNetwork, networks: builtinNetworks()}
	path = strings.TrimSpace(path)
	if path == "" {
		return reg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return reg, nil
		}
		return nil, fmt.Errorf("read networks file: %w", err)
	}
	var file networksFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse networks file %s: %w", path, err)
	}
	for key, override := range file.Networks {
		key = strings.ToLower(strings.TrimSpace(key))
		merged := reg.networks[key]
		if override.Name != "" {
			merged.Name = override.Name
		}
		if override.ChainID != 0 {
			merged.ChainID = override.ChainID
		}
		if override.RPCURL != "" {
			merged.RPCURL = override.RPCURL
		}
		if override.Address != "" {
			merged.Address = override.Address
		}
		if merged.ChainID == 0 {
			return nil, fmt.Errorf("network %s: chain_id required", key)
		}
		reg.networks[key] = merged
	}
	if def := strings.ToLower(strings.TrimSpace(file.Default)); def != "" {
		if _, ok := reg.networks[def]; !ok {
			return nil, fmt.Errorf("default network %s not defined", def)
		}
		reg.defaultKey = def
	}
	return reg, nil
}

// resolve returns the named network, or the default when key is empty.
func (r *networkRegistry) resolve(key string) (Network, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		key = r.defaultKey
	}
	network, ok := r.networks[key]
	if !ok {
		return Network{}, fmt.Errorf("unknown network %q (known: %s)", key, strings.Join(r.keys(), ", "))
	}
	return network, nil
}

func (r *networkRegistry) keys() []string {
	keys := make([]string, 0, len(r.networks))
	for k := range r.networks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
