package web3

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// ChainSnapshot summarizes the state of a network endpoint for health reporting.
type ChainSnapshot struct {
	Network     string `json:"network"`
	ChainID     string `json:"chain_id"`
	BlockNumber string `json:"block_number"`
	Notes       string `json:"notes,omitempty"`
}

// Client is the read-only view of a chain that the assistant needs: whether
// an address holds code, and enough metadata to report endpoint health.
type Client interface {
	FetchChainSnapshot(ctx context.Context) (ChainSnapshot, error)
	CodeSize(ctx context.Context, address common.Address) (int, error)
	Close()
}
