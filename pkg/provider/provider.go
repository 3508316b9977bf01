// Package provider defines how blockchain data reaches the rest of the system
// and ships two implementations: RPCProvider, backed by a go-ethereum JSON-RPC
// client, and MemoryProvider, an in-memory store for tests and demos.
package provider

import (
	"context"
	"math/big"

	"github.com/scrutinychain/sdk/pkg/chain"
	"github.com/scrutinychain/sdk/pkg/errors"
)

// =============================================================================
// Interfaces
// =============================================================================

// DataProvider supplies transactions, contracts and account state.
//
// Implementations must report a missing subject with a KindNotFound error
// (for example errors.ErrContractNotFound) and every other failure with a
// different kind, so IsContract can tell the two apart.
type DataProvider interface {
	// GetTransaction retrieves a transaction by its hash.
	GetTransaction(ctx context.Context, hash chain.Hash) (*chain.Transaction, error)

	// GetContract retrieves the contract deployed at address.
	GetContract(ctx context.Context, address chain.Address) (*chain.SmartContract, error)

	// GetTransactionsInRange retrieves the transactions whose timestamp lies
	// inside r (inclusive).
	GetTransactionsInRange(ctx context.Context, r chain.TimeRange) ([]*chain.Transaction, error)

	// GetAddressTransactions retrieves transactions sent from or to address.
	GetAddressTransactions(ctx context.Context, address chain.Address) ([]*chain.Transaction, error)

	// GetBalance retrieves the current balance of address in wei.
	GetBalance(ctx context.Context, address chain.Address) (*big.Int, error)

	// GetNonce retrieves the number of transactions sent from address.
	GetNonce(ctx context.Context, address chain.Address) (uint64, error)
}

// ContractSource is the subset of DataProvider the bytecode scanners need.
type ContractSource interface {
	GetContract(ctx context.Context, address chain.Address) (*chain.SmartContract, error)
}

// HeadReader reports the latest block number. Health checks use it to probe
// the chain connection.
type HeadReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// =============================================================================
// Helpers
// =============================================================================

// IsContract reports whether address holds a contract.
// A KindNotFound error from GetContract means false; any other error is
// returned unchanged.
func IsContract(ctx context.Context, p ContractSource, address chain.Address) (bool, error) {
	_, err := p.GetContract(ctx, address)
	if err == nil {
		return true, nil
	}
	if errors.IsNotFoundError(err) {
		return false, nil
	}
	return false, err
}

// contractNotFound returns a KindNotFound error naming address.
func contractNotFound(op string, address chain.Address) error {
	return &errors.Error{
		Kind:    errors.KindNotFound,
		Op:      op,
		Message: "Contract not found at address: " + address.String(),
		Err:     errors.ErrContractNotFound,
	}
}

// transactionNotFound returns a KindNotFound error naming hash.
func transactionNotFound(op string, hash chain.Hash) error {
	return &errors.Error{
		Kind:    errors.KindNotFound,
		Op:      op,
		Message: "Transaction not found: " + hash.String(),
		Err:     errors.ErrTransactionNotFound,
	}
}
