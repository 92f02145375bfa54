// Package web3 holds the chain connectivity used by the transfer flow: the
// per-network definitions file and the minimal client contract that lets
// the assistant tell a contract recipient from a plain account before the
// user confirms a transfer.
package web3
