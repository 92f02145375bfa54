package ethereum

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

const contractAddress = "0x52908400098527886E0F7030069857D2E4169EE7"

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params []any           `json:"params"`
}

// newNode serves the handful of JSON-RPC methods the client uses.
func newNode(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		calls = append(calls, req.Method)
		mu.Unlock()

		var result any
		switch req.Method {
		case "eth_chainId":
			result = "0x89"
		case "eth_blockNumber":
			result = "0x2a"
		case "eth_getCode":
			addr, _ := req.Params[0].(string)
			if strings.EqualFold(addr, contractAddress) {
				result = "0x6080604052"
			} else {
				result = "0x"
			}
		default:
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0", "id": req.ID,
				"error": map[string]any{"code": -32601, "message": "method not found"},
			})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestClientCodeSizeAndSnapshot(t *testing.T) {
	srv, calls := newNode(t)
	ctx := context.Background()

	client, err := NewClient(ctx, Config{Name: "POLYGON", RPCURL: srv.URL, Notes: "test node"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(client.Close)

	size, err := client.CodeSize(ctx, common.HexToAddress(contractAddress))
	if err != nil {
		t.Fatalf("CodeSize: %v", err)
	}
	if size != 5 {
		t.Fatalf("expected 5 bytes of code, got %d", size)
	}
	size, err = client.CodeSize(ctx, common.HexToAddress("0x0000000000000000000000000000000000000001"))
	if err != nil || size != 0 {
		t.Fatalf("plain account: size=%d err=%v", size, err)
	}

	snapshot, err := client.FetchChainSnapshot(ctx)
	if err != nil {
		t.Fatalf("FetchChainSnapshot: %v", err)
	}
	if snapshot.Network != "POLYGON" || snapshot.ChainID != "0x89" || snapshot.BlockNumber != "0x2a" || snapshot.Notes != "test node" {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	if len(*calls) != 4 {
		t.Fatalf("expected 4 rpc calls, got %v", *calls)
	}
}

func TestClientErrors(t *testing.T) {
	if _, err := NewClient(context.Background(), Config{Name: "BSC"}); err == nil {
		t.Fatal("missing rpc url must be rejected")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "node down", http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewClient(context.Background(), Config{Name: "BSC", RPCURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.CodeSize(context.Background(), common.HexToAddress(contractAddress)); err == nil {
		t.Fatal("expected an error from a failing node")
	}

	client.Close()
	if _, err := client.FetchChainSnapshot(context.Background()); err == nil {
		t.Fatal("closed client must report an error")
	}
}
