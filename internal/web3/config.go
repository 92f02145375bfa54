package web3

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChainDefinitions models the structure of configs/chains.yaml.
type ChainDefinitions struct {
	Chains map[string]ChainDefinition `yaml:"chains"`
}

// ChainDefinition describes the RPC endpoint of one transfer network.
type ChainDefinition struct {
	Type        string `yaml:"type"`
	RPCURL      string `yaml:"rpc_url"`
	Description string `yaml:"description"`
}

// LoadChainDefinitions parses the YAML file containing chain metadata.
// Network names are upper-cased so they match the transfer allow-list.
func LoadChainDefinitions(path string) (ChainDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return ChainDefinitions{Chains: map[string]ChainDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ChainDefinitions{}, fmt.Errorf("读取链配置失败: %w", err)
	}

	var raw ChainDefinitions
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return ChainDefinitions{}, fmt.Errorf("解析链配置失败: %w", err)
	}
	defs := ChainDefinitions{Chains: make(map[string]ChainDefinition, len(raw.Chains))}
	for name, def := range raw.Chains {
		key := strings.ToUpper(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		if _, dup := defs.Chains[key]; dup {
			return ChainDefinitions{}, fmt.Errorf("链 %s 重复定义", key)
		}
		defs.Chains[key] = def
	}
	return defs, nil
}
