package provider

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/scrutinychain/sdk/pkg/chain"
	"github.com/scrutinychain/sdk/pkg/core"
	"github.com/scrutinychain/sdk/pkg/errors"
	"github.com/scrutinychain/sdk/pkg/metrics"
	"github.com/scrutinychain/sdk/pkg/retry"
)

// JSON-RPC error code most nodes and hosted gateways use for "limit exceeded".
const rpcCodeLimitExceeded = -32005

// Backend is the subset of *ethclient.Client the RPCProvider uses.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	Close()
}

var _ Backend = (*ethclient.Client)(nil)

// =============================================================================
// Configuration
// =============================================================================

// RPCConfig configures an RPCProvider.
type RPCConfig struct {
	// URL is the node endpoint (http, https, ws, wss or an IPC path).
	URL string

	// RequestTimeout bounds each individual JSON-RPC request.
	// Default: 15s
	RequestTimeout time.Duration

	// RateLimitRPS caps requests per second. Zero disables rate limiting.
	RateLimitRPS float64

	// RateBurst is the limiter burst size.
	// Default: 10
	RateBurst int

	// MaxRetries is the number of retries for rate-limited, timed-out or
	// network-failed requests.
	// Default: retry.DefaultMaxRetries
	MaxRetries int

	// BlockLookback is how many blocks back from head the range and address
	// scans walk.
	// Default: 256
	BlockLookback uint64
}

// DefaultRPCConfig returns an RPCConfig with default values.
func DefaultRPCConfig() *RPCConfig {
	return &RPCConfig{
		RequestTimeout: 15 * time.Second,
		RateBurst:      10,
		MaxRetries:     retry.DefaultMaxRetries,
		BlockLookback:  256,
	}
}

func (c *RPCConfig) withDefaults() RPCConfig {
	out := *c
	def := DefaultRPCConfig()
	if out.RequestTimeout <= 0 {
		out.RequestTimeout = def.RequestTimeout
	}
	if out.RateBurst <= 0 {
		out.RateBurst = def.RateBurst
	}
	if out.MaxRetries < 0 {
		out.MaxRetries = 0
	}
	if out.BlockLookback == 0 {
		out.BlockLookback = def.BlockLookback
	}
	return out
}

// =============================================================================
// RPCProvider
// =============================================================================

// RPCProvider is a DataProvider backed by an Ethereum JSON-RPC node.
//
// Every request waits on the rate limiter, runs under RequestTimeout and is
// retried with backoff when it fails with a retryable kind. Concurrent
// GetContract calls for the same address share one eth_getCode request.
type RPCProvider struct {
	backend Backend
	cfg     RPCConfig
	limiter *rate.Limiter
	policy  retry.Policy

	contracts singleflight.Group

	chainIDMu sync.Mutex
	chainID   *big.Int

	logger  core.Logger
	metrics metrics.Collector
}

// RPCOption configures an RPCProvider.
type RPCOption func(*RPCProvider)

// WithRPCLogger sets the logger.
func WithRPCLogger(l core.Logger) RPCOption {
	return func(p *RPCProvider) {
		p.logger = core.LoggerOrNop(l)
	}
}

// WithRPCMetrics sets the metrics collector.
func WithRPCMetrics(c metrics.Collector) RPCOption {
	return func(p *RPCProvider) {
		p.metrics = metrics.OrNop(c)
	}
}

// WithBackoff replaces the retry backoff schedule.
func WithBackoff(b *retry.BackoffConfig) RPCOption {
	return func(p *RPCProvider) {
		p.policy.Backoff = b
	}
}

// DialRPC connects to the node at cfg.URL and returns a provider for it.
func DialRPC(ctx context.Context, cfg *RPCConfig, opts ...RPCOption) (*RPCProvider, error) {
	if cfg == nil || strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.E(errors.KindConfiguration, "provider.DialRPC", "rpc url is required")
	}
	c := cfg.withDefaults()

	backend, err := dialEthClient(ctx, strings.TrimSpace(c.URL), c.RequestTimeout)
	if err != nil {
		return nil, errors.E(errors.KindNetwork, "provider.DialRPC", fmt.Sprintf("dial %s", c.URL), err)
	}
	return NewRPCProvider(backend, &c, opts...), nil
}

func dialEthClient(ctx context.Context, rawURL string, timeout time.Duration) (*ethclient.Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		rpcClient, err := rpc.DialHTTPWithClient(rawURL, &http.Client{Timeout: timeout})
		if err != nil {
			return nil, err
		}
		return ethclient.NewClient(rpcClient), nil
	default:
		return ethclient.DialContext(ctx, rawURL)
	}
}

// NewRPCProvider wraps an existing backend.
func NewRPCProvider(backend Backend, cfg *RPCConfig, opts ...RPCOption) *RPCProvider {
	if cfg == nil {
		cfg = DefaultRPCConfig()
	}
	c := cfg.withDefaults()

	p := &RPCProvider{
		backend: backend,
		cfg:     c,
		policy: retry.Policy{
			MaxRetries: c.MaxRetries,
			Backoff:    retry.DefaultBackoffConfig(),
		},
		logger:  &core.NopLogger{},
		metrics: &metrics.NopCollector{},
	}
	if c.RateLimitRPS > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(c.RateLimitRPS), c.RateBurst)
	}
	for _, opt := range opts {
		opt(p)
	}
	p.policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		p.logger.Warn("rpc request failed, retry %d in %v: %v", attempt, delay, err)
	}
	return p
}

// Close closes the underlying client.
func (p *RPCProvider) Close() {
	p.backend.Close()
}

// =============================================================================
// DataProvider
// =============================================================================

func (p *RPCProvider) GetTransaction(ctx context.Context, hash chain.Hash) (*chain.Transaction, error) {
	const op = "provider.GetTransaction"

	type lookup struct {
		tx      *types.Transaction
		pending bool
	}
	res, err := call(ctx, p, "eth_getTransactionByHash", func(ctx context.Context) (lookup, error) {
		tx, pending, err := p.backend.TransactionByHash(ctx, hash.Hex())
		return lookup{tx, pending}, err
	})
	if err != nil {
		if errors.IsNotFoundError(err) {
			return nil, transactionNotFound(op, hash)
		}
		return nil, errors.Wrap(err, op)
	}

	from, err := p.sender(ctx, res.tx)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	var timestamp uint64
	if !res.pending {
		receipt, err := call(ctx, p, "eth_getTransactionReceipt", func(ctx context.Context) (*types.Receipt, error) {
			return p.backend.TransactionReceipt(ctx, res.tx.Hash())
		})
		if err != nil {
			return nil, errors.Wrap(err, op)
		}
		header, err := call(ctx, p, "eth_getBlockByNumber", func(ctx context.Context) (*types.Header, error) {
			return p.backend.HeaderByNumber(ctx, receipt.BlockNumber)
		})
		if err != nil {
			return nil, errors.Wrap(err, op)
		}
		timestamp = header.Time
	}

	return toChainTransaction(res.tx, from, timestamp), nil
}

// GetContract fetches the code at address. An address without code is
// reported as errors.ErrContractNotFound. Creator and creation transaction
// are not available over plain JSON-RPC and are left empty.
func (p *RPCProvider) GetContract(ctx context.Context, address chain.Address) (*chain.SmartContract, error) {
	const op = "provider.GetContract"

	v, err, _ := p.contracts.Do(address.String(), func() (interface{}, error) {
		code, err := call(ctx, p, "eth_getCode", func(ctx context.Context) ([]byte, error) {
			return p.backend.CodeAt(ctx, address.Hex(), nil)
		})
		if err != nil {
			return nil, errors.Wrap(err, op)
		}
		if len(code) == 0 {
			return nil, contractNotFound(op, address)
		}
		return chain.NewSmartContract(address, code, "", ""), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*chain.SmartContract), nil
}

// GetTransactionsInRange walks back from head, at most BlockLookback blocks,
// and returns the transactions of every block whose timestamp lies in r, in
// chronological order.
func (p *RPCProvider) GetTransactionsInRange(ctx context.Context, r chain.TimeRange) ([]*chain.Transaction, error) {
	var out []*chain.Transaction
	err := p.walkBlocks(ctx, "provider.GetTransactionsInRange", func(block *types.Block) (bool, error) {
		if block.Time() < r.Start {
			return false, nil
		}
		if !r.Contains(block.Time()) {
			return true, nil
		}
		txs, err := p.blockTransactions(ctx, block, nil)
		if err != nil {
			return false, err
		}
		out = append(out, txs...)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

// GetAddressTransactions walks back from head, at most BlockLookback blocks,
// and returns the transactions sent from or to address, in chronological
// order.
func (p *RPCProvider) GetAddressTransactions(ctx context.Context, address chain.Address) ([]*chain.Transaction, error) {
	target := address.Hex()
	var out []*chain.Transaction
	err := p.walkBlocks(ctx, "provider.GetAddressTransactions", func(block *types.Block) (bool, error) {
		txs, err := p.blockTransactions(ctx, block, func(tx *types.Transaction, from common.Address) bool {
			return from == target || (tx.To() != nil && *tx.To() == target)
		})
		if err != nil {
			return false, err
		}
		out = append(out, txs...)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

func (p *RPCProvider) GetBalance(ctx context.Context, address chain.Address) (*big.Int, error) {
	balance, err := call(ctx, p, "eth_getBalance", func(ctx context.Context) (*big.Int, error) {
		return p.backend.BalanceAt(ctx, address.Hex(), nil)
	})
	if err != nil {
		return nil, errors.Wrap(err, "provider.GetBalance")
	}
	return balance, nil
}

func (p *RPCProvider) GetNonce(ctx context.Context, address chain.Address) (uint64, error) {
	nonce, err := call(ctx, p, "eth_getTransactionCount", func(ctx context.Context) (uint64, error) {
		return p.backend.NonceAt(ctx, address.Hex(), nil)
	})
	if err != nil {
		return 0, errors.Wrap(err, "provider.GetNonce")
	}
	return nonce, nil
}

// BlockNumber returns the current head block number.
func (p *RPCProvider) BlockNumber(ctx context.Context) (uint64, error) {
	head, err := call(ctx, p, "eth_blockNumber", p.backend.BlockNumber)
	if err != nil {
		return 0, errors.Wrap(err, "provider.BlockNumber")
	}
	return head, nil
}

// =============================================================================
// Internals
// =============================================================================

// call runs one JSON-RPC request with rate limiting, a per-request timeout,
// retries and metrics.
func call[T any](ctx context.Context, p *RPCProvider, method string, fn func(ctx context.Context) (T, error)) (T, error) {
	timer := metrics.NewTimer(p.metrics, metrics.ProviderRequestDuration.Name, "method", method)
	defer timer.ObserveDuration()

	v, err := retry.DoValue(ctx, p.policy, func(ctx context.Context) (T, error) {
		if err := p.waitForRateLimit(ctx); err != nil {
			var zero T
			return zero, err
		}
		reqCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
		defer cancel()
		v, err := fn(reqCtx)
		return v, classify(method, err)
	})

	status := metrics.StatusSuccess
	switch {
	case err == nil:
	case errors.IsNotFoundError(err):
		status = "not_found"
	default:
		status = metrics.StatusFailure
		p.logger.Debug("rpc %s failed: %v", method, err)
	}
	p.metrics.CounterInc(metrics.ProviderRequestsTotal.Name, "method", method, "status", status)
	return v, err
}

func (p *RPCProvider) waitForRateLimit(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.FromContext("provider.waitForRateLimit", ctxErr)
		}
		return errors.E(errors.KindRateLimit, "provider.waitForRateLimit", err)
	}
	return nil
}

// classify maps a go-ethereum client error onto the error taxonomy.
func classify(method string, err error) error {
	if err == nil {
		return nil
	}
	if errors.GetKind(err) != errors.KindUnknown {
		return err
	}

	var httpErr rpc.HTTPError
	var rpcErr rpc.Error
	switch {
	case errors.Is(err, ethereum.NotFound):
		return errors.E(errors.KindNotFound, method, err)
	case errors.Is(err, context.DeadlineExceeded):
		return errors.E(errors.KindTimeout, method, err)
	case errors.Is(err, context.Canceled):
		return errors.E(errors.KindInternal, method, err)
	case errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests:
		return errors.E(errors.KindRateLimit, method, err)
	case errors.As(err, &rpcErr) && rpcErr.ErrorCode() == rpcCodeLimitExceeded:
		return errors.E(errors.KindRateLimit, method, err)
	case errors.As(err, &rpcErr):
		// The node answered; the request itself was rejected.
		return errors.E(errors.KindValidation, method, err)
	default:
		return errors.E(errors.KindNetwork, method, err)
	}
}

func (p *RPCProvider) signer(ctx context.Context) (types.Signer, error) {
	p.chainIDMu.Lock()
	defer p.chainIDMu.Unlock()

	if p.chainID == nil {
		id, err := call(ctx, p, "eth_chainId", p.backend.ChainID)
		if err != nil {
			return nil, err
		}
		p.chainID = id
	}
	return types.LatestSignerForChainID(p.chainID), nil
}

func (p *RPCProvider) sender(ctx context.Context, tx *types.Transaction) (common.Address, error) {
	signer, err := p.signer(ctx)
	if err != nil {
		return common.Address{}, err
	}
	from, err := types.Sender(signer, tx)
	if err != nil {
		return common.Address{}, errors.E(errors.KindValidation, "provider.sender", err)
	}
	return from, nil
}

// walkBlocks visits blocks from head backwards until visit returns false,
// BlockLookback blocks have been visited, or block zero is reached.
func (p *RPCProvider) walkBlocks(ctx context.Context, op string, visit func(*types.Block) (bool, error)) error {
	head, err := p.BlockNumber(ctx)
	if err != nil {
		return errors.Wrap(err, op)
	}

	for i := uint64(0); i < p.cfg.BlockLookback && i <= head; i++ {
		if err := ctx.Err(); err != nil {
			return errors.FromContext(op, err)
		}
		number := new(big.Int).SetUint64(head - i)
		block, err := call(ctx, p, "eth_getBlockByNumber", func(ctx context.Context) (*types.Block, error) {
			return p.backend.BlockByNumber(ctx, number)
		})
		if err != nil {
			return errors.Wrap(err, op)
		}
		more, err := visit(block)
		if err != nil {
			return errors.Wrap(err, op)
		}
		if !more {
			return nil
		}
	}
	return nil
}

// blockTransactions converts the transactions of block, newest first, keeping
// those accepted by keep (all when keep is nil).
func (p *RPCProvider) blockTransactions(ctx context.Context, block *types.Block, keep func(*types.Transaction, common.Address) bool) ([]*chain.Transaction, error) {
	txs := block.Transactions()
	out := make([]*chain.Transaction, 0, len(txs))
	for i := len(txs) - 1; i >= 0; i-- {
		tx := txs[i]
		from, err := p.sender(ctx, tx)
		if err != nil {
			return nil, err
		}
		if keep != nil && !keep(tx, from) {
			continue
		}
		out = append(out, toChainTransaction(tx, from, block.Time()))
	}
	return out, nil
}

func toChainTransaction(tx *types.Transaction, from common.Address, timestamp uint64) *chain.Transaction {
	var to *chain.Address
	if tx.To() != nil {
		a := chain.Address(tx.To().Hex())
		to = &a
	}
	return &chain.Transaction{
		Hash:      chain.Hash(tx.Hash().Hex()),
		From:      chain.Address(from.Hex()),
		To:        to,
		Value:     saturatingUint64(tx.Value()),
		GasPrice:  saturatingUint64(tx.GasPrice()),
		GasLimit:  tx.Gas(),
		Nonce:     tx.Nonce(),
		Data:      tx.Data(),
		Timestamp: timestamp,
	}
}

// saturatingUint64 converts v to uint64, clamping at math.MaxUint64.
func saturatingUint64(v *big.Int) uint64 {
	if v == nil || v.Sign() <= 0 {
		return 0
	}
	if !v.IsUint64() {
		return math.MaxUint64
	}
	return v.Uint64()
}

var (
	_ DataProvider = (*RPCProvider)(nil)
	_ HeadReader   = (*RPCProvider)(nil)
)
