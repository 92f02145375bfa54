package provider

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	xerrors "WalletChat/internal/errors"
	"WalletChat/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

type fakeChain struct {
	code     map[common.Address]int
	err      error
	deadline bool
	closed   bool
}

func (f *fakeChain) FetchChainSnapshot(context.Context) (web3.ChainSnapshot, error) {
	if f.err != nil {
		return web3.ChainSnapshot{}, f.err
	}
	return web3.ChainSnapshot{ChainID: "0x38", BlockNumber: "0x1"}, nil
}

func (f *fakeChain) CodeSize(ctx context.Context, address common.Address) (int, error) {
	_, f.deadline = ctx.Deadline()
	if f.err != nil {
		return 0, f.err
	}
	return f.code[address], nil
}

func (f *fakeChain) Close() { f.closed = true }

const contract = "0x52908400098527886E0F7030069857D2E4169EE7"

func TestRegistryIsContract(t *testing.T) {
	bsc := &fakeChain{code: map[common.Address]int{common.HexToAddress(contract): 120}}
	reg := NewRegistryFromClients(map[string]web3.Client{"bsc": bsc}, time.Second)
	ctx := context.Background()

	got, err := reg.IsContract(ctx, "BSC", contract)
	if err != nil || !got {
		t.Fatalf("expected contract, got %v %v", got, err)
	}
	if !bsc.deadline {
		t.Fatal("inspection must run under the configured timeout")
	}
	got, err = reg.IsContract(ctx, "bsc", "0x0000000000000000000000000000000000000001")
	if err != nil || got {
		t.Fatalf("expected plain account, got %v %v", got, err)
	}

	if _, err := reg.IsContract(ctx, "POLYGON", contract); !xerrors.HasCode(err, xerrors.CodeNotFound) {
		t.Fatalf("unknown network must be NOT_FOUND, got %v", err)
	}
	if _, err := reg.IsContract(ctx, "BSC", "not-an-address"); !xerrors.HasCode(err, xerrors.CodeInvalidArgument) {
		t.Fatalf("bad address must be INVALID_ARGUMENT, got %v", err)
	}

	bsc.err = errors.New("dial tcp: refused")
	if _, err := reg.IsContract(ctx, "BSC", contract); !xerrors.HasCode(err, xerrors.CodeUpstreamUnavailable) {
		t.Fatalf("rpc failure must be UPSTREAM_UNAVAILABLE, got %v", err)
	}
}

func TestRegistrySnapshotsAndClose(t *testing.T) {
	healthy := &fakeChain{}
	broken := &fakeChain{err: errors.New("timeout")}
	reg := NewRegistryFromClients(map[string]web3.Client{"ETHEREUM": healthy, "BSC": broken}, 0)

	if chains := reg.Chains(); len(chains) != 2 || chains[0] != "BSC" || chains[1] != "ETHEREUM" {
		t.Fatalf("unexpected chains %v", chains)
	}
	snapshots, failures := reg.Snapshots(context.Background())
	if len(snapshots) != 1 || snapshots[0].Network != "ETHEREUM" {
		t.Fatalf("unexpected snapshots %+v", snapshots)
	}
	if failures["BSC"] == nil {
		t.Fatalf("expected BSC failure, got %v", failures)
	}

	reg.Close()
	if !healthy.closed || !broken.closed || len(reg.Chains()) != 0 {
		t.Fatal("Close must release every client")
	}
}

func TestNewRegistryFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chains.yaml")
	content := "chains:\n  polygon:\n    rpc_url: http://127.0.0.1:8545\n    description: local node\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	reg, err := NewRegistry(context.Background(), path, time.Second)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	defer reg.Close()
	if _, ok := reg.Client("Polygon"); !ok {
		t.Fatalf("expected POLYGON client, got %v", reg.Chains())
	}

	empty, err := NewRegistry(context.Background(), "", 0)
	if err != nil || len(empty.Chains()) != 0 {
		t.Fatalf("empty path must give an empty registry: %v", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	_ = os.WriteFile(bad, []byte("chains:\n  solana:\n    type: svm\n    rpc_url: http://x\n"), 0o600)
	if _, err := NewRegistry(context.Background(), bad, 0); !xerrors.HasCode(err, xerrors.CodeInitializationFailure) {
		t.Fatalf("unsupported chain type must fail, got %v", err)
	}
}
