// Package analyzers provides the built-in transaction analyzers.
//
// Each analyzer returns a small map of signals for one transaction. Keys are
// distinct across the built-ins so they can all be registered on one
// processor without overwriting each other.
package analyzers

import (
	"context"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/scrutinychain/sdk/pkg/chain"
	"github.com/scrutinychain/sdk/pkg/core"
	"github.com/scrutinychain/sdk/pkg/errors"
	"github.com/scrutinychain/sdk/pkg/provider"
)

// Built-in analyzer names.
const (
	NameGas              = "gas"
	NameValue            = "value"
	NameContractCreation = "contract-creation"
	NameCounterparty     = "counterparty"
)

// Result keys.
const (
	KeyGasEfficiency    = "gas_efficiency"
	KeyAnomalyScore     = "anomaly_score"
	KeyMLAnalysis       = "ml_analysis"
	KeyValueClass       = "value_class"
	KeyTotalCost        = "total_cost"
	KeyContractCreation = "contract_creation"
	KeyCalldataSize     = "calldata_size"
	KeyRecipientType    = "recipient_type"
)

// =============================================================================
// Gas Analyzer
// =============================================================================

// DefaultGasPriceThreshold is the gas price above which a transaction is
// reported as inefficient.
const DefaultGasPriceThreshold uint64 = 100

// GasAnalyzer rates the gas price of a transaction.
type GasAnalyzer struct {
	// Threshold is the highest gas price still considered efficient.
	Threshold uint64
}

// NewGasAnalyzer creates a gas analyzer with DefaultGasPriceThreshold.
func NewGasAnalyzer() *GasAnalyzer {
	return &GasAnalyzer{Threshold: DefaultGasPriceThreshold}
}

func (a *GasAnalyzer) Name() string { return NameGas }

// Analyze reports gas_efficiency, an anomaly_score in [0, 1) that grows with
// the distance above the threshold, and the ml_analysis marker.
func (a *GasAnalyzer) Analyze(ctx context.Context, tx *chain.Transaction) (map[string]string, error) {
	efficiency := "efficient"
	score := 0.0
	if tx.GasPrice > a.Threshold {
		efficiency = "inefficient"
		score = 1 - float64(a.Threshold)/float64(tx.GasPrice)
	}
	return map[string]string{
		KeyGasEfficiency: efficiency,
		KeyAnomalyScore:  strconv.FormatFloat(score, 'f', 2, 64),
		KeyMLAnalysis:    "heuristic",
	}, nil
}

// =============================================================================
// Value Analyzer
// =============================================================================

// Default value class bounds in wei.
const (
	DefaultDustThreshold  uint64 = 1_000_000_000_000          // 0.000001 ether
	DefaultWhaleThreshold uint64 = 10_000_000_000_000_000_000 // 10 ether
)

// ValueAnalyzer classifies the transferred value and reports the maximum
// total cost of the transaction.
type ValueAnalyzer struct {
	DustThreshold  uint64
	WhaleThreshold uint64
}

// NewValueAnalyzer creates a value analyzer with the default bounds.
func NewValueAnalyzer() *ValueAnalyzer {
	return &ValueAnalyzer{
		DustThreshold:  DefaultDustThreshold,
		WhaleThreshold: DefaultWhaleThreshold,
	}
}

func (a *ValueAnalyzer) Name() string { return NameValue }

// Analyze reports value_class (dust, normal or whale) and total_cost, the
// value plus gas price times gas limit in wei, computed without overflow.
func (a *ValueAnalyzer) Analyze(ctx context.Context, tx *chain.Transaction) (map[string]string, error) {
	class := "normal"
	switch {
	case tx.Value < a.DustThreshold:
		class = "dust"
	case tx.Value >= a.WhaleThreshold:
		class = "whale"
	}

	cost := new(big.Int).SetUint64(tx.GasPrice)
	cost.Mul(cost, new(big.Int).SetUint64(tx.GasLimit))
	cost.Add(cost, new(big.Int).SetUint64(tx.Value))

	return map[string]string{
		KeyValueClass: class,
		KeyTotalCost:  cost.String(),
	}, nil
}

// =============================================================================
// Contract Creation Analyzer
// =============================================================================

// ContractCreationAnalyzer reports whether a transaction deploys a contract.
type ContractCreationAnalyzer struct{}

// NewContractCreationAnalyzer creates a contract creation analyzer.
func NewContractCreationAnalyzer() *ContractCreationAnalyzer {
	return &ContractCreationAnalyzer{}
}

func (a *ContractCreationAnalyzer) Name() string { return NameContractCreation }

func (a *ContractCreationAnalyzer) Analyze(ctx context.Context, tx *chain.Transaction) (map[string]string, error) {
	return map[string]string{
		KeyContractCreation: strconv.FormatBool(tx.IsContractCreation()),
		KeyCalldataSize:     strconv.Itoa(len(tx.Data)),
	}, nil
}

// =============================================================================
// Counterparty Analyzer
// =============================================================================

const (
	// DefaultCounterpartyCacheTTL is how long a recipient classification is reused.
	DefaultCounterpartyCacheTTL = 5 * time.Minute

	// DefaultCounterpartyCacheSize caps the number of cached recipients.
	DefaultCounterpartyCacheSize = 10000
)

// CounterpartyAnalyzer reports whether the recipient is a contract or an
// externally owned account. Classifications are cached per address for
// CacheTTL; provider errors other than "not found" fail the analysis.
//
// Expired entries are swept at most once per CacheTTL. When the cache holds
// CacheSize entries the oldest one is evicted.
type CounterpartyAnalyzer struct {
	mu sync.RWMutex

	source    provider.ContractSource
	CacheTTL  time.Duration
	CacheSize int

	cache     map[chain.Address]cachedKind
	lastSweep time.Time
	now       func() time.Time
}

type cachedKind struct {
	contract bool
	at       time.Time
}

// NewCounterpartyAnalyzer creates a counterparty analyzer reading from source.
func NewCounterpartyAnalyzer(source provider.ContractSource) *CounterpartyAnalyzer {
	return &CounterpartyAnalyzer{
		source:    source,
		CacheTTL:  DefaultCounterpartyCacheTTL,
		CacheSize: DefaultCounterpartyCacheSize,
		cache:     make(map[chain.Address]cachedKind),
		now:       time.Now,
	}
}

func (a *CounterpartyAnalyzer) Name() string { return NameCounterparty }

// Analyze reports recipient_type: contract, eoa, or none for a transaction
// without a recipient.
func (a *CounterpartyAnalyzer) Analyze(ctx context.Context, tx *chain.Transaction) (map[string]string, error) {
	if tx.To == nil {
		return map[string]string{KeyRecipientType: "none"}, nil
	}

	contract, err := a.isContract(ctx, *tx.To)
	if err != nil {
		return nil, errors.Wrap(err, "analyzers.counterparty")
	}

	kind := "eoa"
	if contract {
		kind = "contract"
	}
	return map[string]string{KeyRecipientType: kind}, nil
}

func (a *CounterpartyAnalyzer) isContract(ctx context.Context, address chain.Address) (bool, error) {
	a.mu.RLock()
	entry, ok := a.cache[address]
	a.mu.RUnlock()
	if ok {
		if a.now().Sub(entry.at) < a.CacheTTL {
			return entry.contract, nil
		}
		a.mu.Lock()
		if cur, still := a.cache[address]; still && cur.at.Equal(entry.at) {
			delete(a.cache, address)
		}
		a.mu.Unlock()
	}

	contract, err := provider.IsContract(ctx, a.source, address)
	if err != nil {
		return false, err
	}

	if a.CacheTTL > 0 {
		a.store(address, contract)
	}
	return contract, nil
}

func (a *CounterpartyAnalyzer) store(address chain.Address, contract bool) {
	now := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()

	if now.Sub(a.lastSweep) >= a.CacheTTL {
		for addr, e := range a.cache {
			if now.Sub(e.at) >= a.CacheTTL {
				delete(a.cache, addr)
			}
		}
		a.lastSweep = now
	}

	if _, exists := a.cache[address]; !exists && a.CacheSize > 0 && len(a.cache) >= a.CacheSize {
		var (
			oldest   chain.Address
			oldestAt time.Time
			found    bool
		)
		for addr, e := range a.cache {
			if !found || e.at.Before(oldestAt) {
				oldest, oldestAt, found = addr, e.at, true
			}
		}
		delete(a.cache, oldest)
	}

	a.cache[address] = cachedKind{contract: contract, at: now}
}

// ClearCache drops every cached classification.
func (a *CounterpartyAnalyzer) ClearCache() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache = make(map[chain.Address]cachedKind)
}

// CacheLen returns the number of cached classifications.
func (a *CounterpartyAnalyzer) CacheLen() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.cache)
}

// =============================================================================
// Interface compliance
// =============================================================================

var (
	_ core.Analyzer = (*GasAnalyzer)(nil)
	_ core.Analyzer = (*ValueAnalyzer)(nil)
	_ core.Analyzer = (*ContractCreationAnalyzer)(nil)
	_ core.Analyzer = (*CounterpartyAnalyzer)(nil)
	_ core.Named    = (*CounterpartyAnalyzer)(nil)
)
