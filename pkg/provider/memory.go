package provider

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"github.com/scrutinychain/sdk/pkg/chain"
	"github.com/scrutinychain/sdk/pkg/errors"
)

// MemoryProvider is a DataProvider backed by maps. It is safe for concurrent
// use. Addresses and hashes are matched exactly as given.
type MemoryProvider struct {
	mu           sync.RWMutex
	head         uint64
	transactions map[chain.Hash]*chain.Transaction
	order        []chain.Hash
	contracts    map[chain.Address]*chain.SmartContract
	balances     map[chain.Address]*big.Int
	nonces       map[chain.Address]uint64
}

// NewMemoryProvider creates an empty MemoryProvider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		transactions: make(map[chain.Hash]*chain.Transaction),
		contracts:    make(map[chain.Address]*chain.SmartContract),
		balances:     make(map[chain.Address]*big.Int),
		nonces:       make(map[chain.Address]uint64),
	}
}

// AddTransaction stores tx, replacing any transaction with the same hash.
// Each call advances the simulated head block by one.
func (m *MemoryProvider) AddTransaction(tx *chain.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.transactions[tx.Hash]; !exists {
		m.order = append(m.order, tx.Hash)
	}
	m.transactions[tx.Hash] = tx
	m.head++
}

// AddContract stores c, replacing any contract at the same address.
func (m *MemoryProvider) AddContract(c *chain.SmartContract) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contracts[c.Address] = c
}

// SetBalance sets the balance of address.
func (m *MemoryProvider) SetBalance(address chain.Address, balance *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[address] = new(big.Int).Set(balance)
}

// SetNonce sets the nonce of address.
func (m *MemoryProvider) SetNonce(address chain.Address, nonce uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nonces[address] = nonce
}

func (m *MemoryProvider) GetTransaction(ctx context.Context, hash chain.Hash) (*chain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContext("provider.GetTransaction", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.transactions[hash]
	if !ok {
		return nil, transactionNotFound("provider.GetTransaction", hash)
	}
	return tx, nil
}

// GetContract returns the stored contract. A stored contract with empty
// bytecode is reported as not found, the same way an RPC node reports an
// externally owned account.
func (m *MemoryProvider) GetContract(ctx context.Context, address chain.Address) (*chain.SmartContract, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContext("provider.GetContract", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contracts[address]
	if !ok || len(c.Bytecode) == 0 {
		return nil, contractNotFound("provider.GetContract", address)
	}
	return c, nil
}

// GetTransactionsInRange returns matching transactions ordered by timestamp,
// then insertion order.
func (m *MemoryProvider) GetTransactionsInRange(ctx context.Context, r chain.TimeRange) ([]*chain.Transaction, error) {
	return m.filter(ctx, "provider.GetTransactionsInRange", func(tx *chain.Transaction) bool {
		return r.Contains(tx.Timestamp)
	})
}

// GetAddressTransactions returns transactions sent from or to address,
// ordered by timestamp, then insertion order.
func (m *MemoryProvider) GetAddressTransactions(ctx context.Context, address chain.Address) ([]*chain.Transaction, error) {
	return m.filter(ctx, "provider.GetAddressTransactions", func(tx *chain.Transaction) bool {
		return tx.From == address || (tx.To != nil && *tx.To == address)
	})
}

// GetBalance returns the stored balance, or zero for unknown addresses.
func (m *MemoryProvider) GetBalance(ctx context.Context, address chain.Address) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContext("provider.GetBalance", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.balances[address]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

// GetNonce returns the stored nonce, or zero for unknown addresses.
func (m *MemoryProvider) GetNonce(ctx context.Context, address chain.Address) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errors.FromContext("provider.GetNonce", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nonces[address], nil
}

// BlockNumber returns the number of transactions added so far.
func (m *MemoryProvider) BlockNumber(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errors.FromContext("provider.BlockNumber", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.head, nil
}

func (m *MemoryProvider) filter(ctx context.Context, op string, keep func(*chain.Transaction) bool) ([]*chain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContext(op, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*chain.Transaction
	for _, h := range m.order {
		if tx := m.transactions[h]; keep(tx) {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out, nil
}

var (
	_ DataProvider = (*MemoryProvider)(nil)
	_ HeadReader   = (*MemoryProvider)(nil)
)
