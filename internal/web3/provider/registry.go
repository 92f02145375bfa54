package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	xerrors "WalletChat/internal/errors"
	"WalletChat/internal/web3"
	"WalletChat/internal/web3/ethereum"

	"github.com/ethereum/go-ethereum/common"
)

// Registry manages chain clients keyed by upper-case network name.
type Registry struct {
	clients map[string]web3.Client
	timeout time.Duration
}

// NewRegistry loads chain definitions and instantiates concrete clients.
// An empty path yields an empty registry; every lookup then reports NOT_FOUND.
func NewRegistry(ctx context.Context, path string, timeout time.Duration) (*Registry, error) {
	defs, err := web3.LoadChainDefinitions(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "加载链配置失败")
	}

	clients := make(map[string]web3.Client, len(defs.Chains))
	for name, chain := range defs.Chains {
		chainType := strings.ToLower(strings.TrimSpace(chain.Type))
		if chainType == "" {
			chainType = "evm"
		}
		switch chainType {
		case "evm":
			client, err := ethereum.NewClient(ctx, ethereum.Config{
				Name:   name,
				RPCURL: chain.RPCURL,
				Notes:  chain.Description,
			})
			if err != nil {
				closeAll(clients)
				return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, fmt.Sprintf("初始化链 %s 失败", name))
			}
			clients[name] = client
		default:
			closeAll(clients)
			return nil, xerrors.New(xerrors.CodeInitializationFailure, fmt.Sprintf("链 %s 使用了不支持的类型 %s", name, chain.Type))
		}
	}
	return NewRegistryFromClients(clients, timeout), nil
}

// NewRegistryFromClients wraps already constructed clients.
func NewRegistryFromClients(clients map[string]web3.Client, timeout time.Duration) *Registry {
	normalized := make(map[string]web3.Client, len(clients))
	for name, client := range clients {
		normalized[strings.ToUpper(name)] = client
	}
	return &Registry{clients: normalized, timeout: timeout}
}

func closeAll(clients map[string]web3.Client) {
	for _, client := range clients {
		client.Close()
	}
}

// Client returns the chain client identified by network name.
func (r *Registry) Client(network string) (web3.Client, bool) {
	if r == nil {
		return nil, false
	}
	client, ok := r.clients[strings.ToUpper(strings.TrimSpace(network))]
	return client, ok
}

// IsContract reports whether address holds code on the given network.
func (r *Registry) IsContract(ctx context.Context, network, address string) (bool, error) {
	client, ok := r.Client(network)
	if !ok {
		return false, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("链 %s 未配置 RPC", network))
	}
	if !common.IsHexAddress(address) {
		return false, xerrors.New(xerrors.CodeInvalidArgument, "地址格式无效")
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	size, err := client.CodeSize(ctx, common.HexToAddress(address))
	if err != nil {
		return false, xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "查询收款地址失败",
			xerrors.WithMetadata("service", "rpc"),
			xerrors.WithMetadata("network", strings.ToUpper(network)))
	}
	return size > 0, nil
}

// Snapshots queries every configured network; failures are reported per network.
func (r *Registry) Snapshots(ctx context.Context) ([]web3.ChainSnapshot, map[string]error) {
	var (
		snapshots []web3.ChainSnapshot
		failures  = map[string]error{}
	)
	for _, name := range r.Chains() {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if r.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		}
		snapshot, err := r.clients[name].FetchChainSnapshot(callCtx)
		cancel()
		if err != nil {
			failures[name] = err
			continue
		}
		snapshot.Network = name
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, failures
}

// Close releases all clients managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for name, client := range r.clients {
		if client != nil {
			client.Close()
		}
		delete(r.clients, name)
	}
}

// Chains returns the list of registered network names.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
