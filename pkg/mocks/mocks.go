// Package mocks provides mock implementations for testing.
//
// Every mock records its calls and delegates to an optional Fn hook. Mocks are
// safe for concurrent use so they can back batch and concurrency tests.
package mocks

import (
	"context"
	"math/big"
	"sync"

	"github.com/scrutinychain/sdk/pkg/chain"
	"github.com/scrutinychain/sdk/pkg/core"
	"github.com/scrutinychain/sdk/pkg/errors"
	"github.com/scrutinychain/sdk/pkg/provider"
)

// =============================================================================
// Mock Scanner
// =============================================================================

// MockScanner is a mock implementation of core.Scanner for testing.
type MockScanner struct {
	mu sync.Mutex

	// NameValue is returned by Name. Empty means "mock-scanner".
	NameValue string

	// Findings is returned when ScanFn is nil.
	Findings []string

	// ScanFn is called when Scan is invoked
	ScanFn func(ctx context.Context, address chain.Address) ([]string, error)

	// Call tracking
	ScanCalls []chain.Address
}

// NewMockScanner returns a scanner that always reports findings.
func NewMockScanner(name string, findings ...string) *MockScanner {
	return &MockScanner{NameValue: name, Findings: findings}
}

// NewFailingScanner returns a scanner that always fails with err.
func NewFailingScanner(name string, err error) *MockScanner {
	return &MockScanner{
		NameValue: name,
		ScanFn: func(ctx context.Context, address chain.Address) ([]string, error) {
			return nil, err
		},
	}
}

func (m *MockScanner) Name() string {
	if m.NameValue == "" {
		return "mock-scanner"
	}
	return m.NameValue
}

func (m *MockScanner) Scan(ctx context.Context, address chain.Address) ([]string, error) {
	m.mu.Lock()
	m.ScanCalls = append(m.ScanCalls, address)
	fn := m.ScanFn
	findings := append([]string(nil), m.Findings...)
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, address)
	}
	return findings, nil
}

// CallCount returns how many times Scan was invoked.
func (m *MockScanner) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ScanCalls)
}

// =============================================================================
// Mock Analyzer
// =============================================================================

// MockAnalyzer is a mock implementation of core.Analyzer for testing.
type MockAnalyzer struct {
	mu sync.Mutex

	// NameValue is returned by Name. Empty means "mock-analyzer".
	NameValue string

	// Result is returned (as a copy) when AnalyzeFn is nil.
	Result map[string]string

	// AnalyzeFn is called when Analyze is invoked
	AnalyzeFn func(ctx context.Context, tx *chain.Transaction) (map[string]string, error)

	// Call tracking
	AnalyzeCalls []*chain.Transaction
}

// NewMockAnalyzer returns an analyzer that always returns result.
func NewMockAnalyzer(name string, result map[string]string) *MockAnalyzer {
	return &MockAnalyzer{NameValue: name, Result: result}
}

// NewFailingAnalyzer returns an analyzer that always fails with err.
func NewFailingAnalyzer(name string, err error) *MockAnalyzer {
	return &MockAnalyzer{
		NameValue: name,
		AnalyzeFn: func(ctx context.Context, tx *chain.Transaction) (map[string]string, error) {
			return nil, err
		},
	}
}

func (m *MockAnalyzer) Name() string {
	if m.NameValue == "" {
		return "mock-analyzer"
	}
	return m.NameValue
}

func (m *MockAnalyzer) Analyze(ctx context.Context, tx *chain.Transaction) (map[string]string, error) {
	m.mu.Lock()
	m.AnalyzeCalls = append(m.AnalyzeCalls, tx)
	fn := m.AnalyzeFn
	out := make(map[string]string, len(m.Result))
	for k, v := range m.Result {
		out[k] = v
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, tx)
	}
	return out, nil
}

// CallCount returns how many times Analyze was invoked.
func (m *MockAnalyzer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.AnalyzeCalls)
}

// =============================================================================
// Mock Provider
// =============================================================================

// MockProvider is a mock implementation of provider.DataProvider for testing.
// Methods without a hook report "not found" for lookups and zero for account
// state.
type MockProvider struct {
	mu sync.Mutex

	GetTransactionFn         func(ctx context.Context, hash chain.Hash) (*chain.Transaction, error)
	GetContractFn            func(ctx context.Context, address chain.Address) (*chain.SmartContract, error)
	GetTransactionsInRangeFn func(ctx context.Context, r chain.TimeRange) ([]*chain.Transaction, error)
	GetAddressTransactionsFn func(ctx context.Context, address chain.Address) ([]*chain.Transaction, error)
	GetBalanceFn             func(ctx context.Context, address chain.Address) (*big.Int, error)
	GetNonceFn               func(ctx context.Context, address chain.Address) (uint64, error)
	BlockNumberFn            func(ctx context.Context) (uint64, error)

	// Call tracking
	GetTransactionCalls  []chain.Hash
	GetContractCalls     []chain.Address
	GetRangeCalls        []chain.TimeRange
	GetAddressTxCalls    []chain.Address
	GetBalanceCalls      []chain.Address
	GetNonceCalls        []chain.Address
	BlockNumberCallCount int
}

func (m *MockProvider) GetTransaction(ctx context.Context, hash chain.Hash) (*chain.Transaction, error) {
	m.mu.Lock()
	m.GetTransactionCalls = append(m.GetTransactionCalls, hash)
	fn := m.GetTransactionFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, hash)
	}
	return nil, errors.ErrTransactionNotFound
}

func (m *MockProvider) GetContract(ctx context.Context, address chain.Address) (*chain.SmartContract, error) {
	m.mu.Lock()
	m.GetContractCalls = append(m.GetContractCalls, address)
	fn := m.GetContractFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, address)
	}
	return nil, errors.ErrContractNotFound
}

func (m *MockProvider) GetTransactionsInRange(ctx context.Context, r chain.TimeRange) ([]*chain.Transaction, error) {
	m.mu.Lock()
	m.GetRangeCalls = append(m.GetRangeCalls, r)
	fn := m.GetTransactionsInRangeFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, r)
	}
	return nil, nil
}

func (m *MockProvider) GetAddressTransactions(ctx context.Context, address chain.Address) ([]*chain.Transaction, error) {
	m.mu.Lock()
	m.GetAddressTxCalls = append(m.GetAddressTxCalls, address)
	fn := m.GetAddressTransactionsFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, address)
	}
	return nil, nil
}

func (m *MockProvider) GetBalance(ctx context.Context, address chain.Address) (*big.Int, error) {
	m.mu.Lock()
	m.GetBalanceCalls = append(m.GetBalanceCalls, address)
	fn := m.GetBalanceFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, address)
	}
	return new(big.Int), nil
}

func (m *MockProvider) GetNonce(ctx context.Context, address chain.Address) (uint64, error) {
	m.mu.Lock()
	m.GetNonceCalls = append(m.GetNonceCalls, address)
	fn := m.GetNonceFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, address)
	}
	return 0, nil
}

func (m *MockProvider) BlockNumber(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	m.BlockNumberCallCount++
	fn := m.BlockNumberFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return 0, nil
}

// =============================================================================
// Interface compliance checks
// =============================================================================

var (
	_ core.Scanner          = (*MockScanner)(nil)
	_ core.Named            = (*MockScanner)(nil)
	_ core.Analyzer         = (*MockAnalyzer)(nil)
	_ core.Named            = (*MockAnalyzer)(nil)
	_ provider.DataProvider = (*MockProvider)(nil)
	_ provider.HeadReader   = (*MockProvider)(nil)
)
