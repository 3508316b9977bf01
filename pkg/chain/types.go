// Package chain defines the blockchain value types shared by the engines,
// the data providers and the built-in plugins.
package chain

import (
	"math"
	"math/bits"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/scrutinychain/sdk/pkg/errors"
)

// =============================================================================
// Identifiers
// =============================================================================

// Address is an account or contract address.
// It is an opaque string so that test fixtures such as "0x123" remain valid;
// use ParseAddress when the input comes from an untrusted caller.
type Address string

// String returns the address as given.
func (a Address) String() string { return string(a) }

// IsZero reports whether the address is empty.
func (a Address) IsZero() bool { return a == "" }

// Hex returns the go-ethereum representation of the address.
func (a Address) Hex() common.Address { return common.HexToAddress(string(a)) }

// Hash is a transaction or block hash.
type Hash string

// String returns the hash as given.
func (h Hash) String() string { return string(h) }

// Hex returns the go-ethereum representation of the hash.
func (h Hash) Hex() common.Hash { return common.HexToHash(string(h)) }

// ParseAddress validates a 0x-prefixed 20-byte hex address.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "", errors.E(errors.KindValidation, "chain.ParseAddress", "address must be 0x-prefixed: "+s)
	}
	if !common.IsHexAddress(s) {
		return "", errors.E(errors.KindValidation, "chain.ParseAddress", "invalid address: "+s)
	}
	return Address(s), nil
}

// ParseHash validates a 0x-prefixed 32-byte hex hash.
func ParseHash(s string) (Hash, error) {
	s = strings.TrimSpace(s)
	b, err := hexutil.Decode(s)
	if err != nil {
		return "", errors.E(errors.KindValidation, "chain.ParseHash", "invalid hash: "+s, err)
	}
	if len(b) != common.HashLength {
		return "", errors.E(errors.KindValidation, "chain.ParseHash", "hash must be 32 bytes: "+s)
	}
	return Hash(s), nil
}

// =============================================================================
// Time Range
// =============================================================================

// TimeRange is an inclusive range of unix timestamps (seconds).
type TimeRange struct {
	Start uint64 `json:"start" yaml:"start"`
	End   uint64 `json:"end" yaml:"end"`
}

// NewTimeRange creates a time range.
func NewTimeRange(start, end uint64) TimeRange {
	return TimeRange{Start: start, End: end}
}

// Contains reports whether ts lies within the range, both ends included.
func (r TimeRange) Contains(ts uint64) bool {
	return ts >= r.Start && ts <= r.End
}

// =============================================================================
// Transaction
// =============================================================================

// Transaction is a chain transaction as seen by the analyzers.
type Transaction struct {
	Hash      Hash     `json:"hash"`
	From      Address  `json:"from"`
	To        *Address `json:"to,omitempty"`
	Value     uint64   `json:"value"`
	GasPrice  uint64   `json:"gas_price"`
	GasLimit  uint64   `json:"gas_limit"`
	Nonce     uint64   `json:"nonce"`
	Data      []byte   `json:"data,omitempty"`
	Timestamp uint64   `json:"timestamp"`
}

// NewTransaction creates a transaction stamped with the current time.
func NewTransaction(hash Hash, from Address, to *Address, value, gasPrice, gasLimit, nonce uint64, data []byte) *Transaction {
	return &Transaction{
		Hash:      hash,
		From:      from,
		To:        to,
		Value:     value,
		GasPrice:  gasPrice,
		GasLimit:  gasLimit,
		Nonce:     nonce,
		Data:      data,
		Timestamp: CurrentTimestamp(),
	}
}

// TotalCost is the value plus the maximum gas spend, clamped to
// math.MaxUint64.
func (t *Transaction) TotalCost() uint64 {
	hi, gas := bits.Mul64(t.GasPrice, t.GasLimit)
	if hi != 0 {
		return math.MaxUint64
	}
	sum, carry := bits.Add64(t.Value, gas, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

// IsContractCreation reports whether the transaction deploys a contract.
func (t *Transaction) IsContractCreation() bool {
	return t.To == nil && len(t.Data) > 0
}

// AgeInSeconds returns the seconds elapsed since the transaction timestamp.
func (t *Transaction) AgeInSeconds() uint64 {
	return saturatingSub(CurrentTimestamp(), t.Timestamp)
}

// =============================================================================
// Smart Contract
// =============================================================================

// SmartContract is deployed contract state.
type SmartContract struct {
	Address    Address           `json:"address"`
	Bytecode   []byte            `json:"bytecode"`
	Creator    Address           `json:"creator,omitempty"`
	CreationTx string            `json:"creation_tx,omitempty"`
	Storage    map[string][]byte `json:"storage,omitempty"`
	Timestamp  uint64            `json:"timestamp"`
}

// NewSmartContract creates a contract record stamped with the current time.
func NewSmartContract(address Address, bytecode []byte, creator Address, creationTx string) *SmartContract {
	return &SmartContract{
		Address:    address,
		Bytecode:   bytecode,
		Creator:    creator,
		CreationTx: creationTx,
		Storage:    make(map[string][]byte),
		Timestamp:  CurrentTimestamp(),
	}
}

// HasStorage reports whether the storage slot key is known.
func (c *SmartContract) HasStorage(key string) bool {
	_, ok := c.Storage[key]
	return ok
}

// BytecodeSize returns the deployed code size in bytes.
func (c *SmartContract) BytecodeSize() int {
	return len(c.Bytecode)
}

// AgeInSeconds returns the seconds elapsed since the contract was recorded.
func (c *SmartContract) AgeInSeconds() uint64 {
	return saturatingSub(CurrentTimestamp(), c.Timestamp)
}

// =============================================================================
// Helpers
// =============================================================================

// CurrentTimestamp returns the wall-clock time in unix seconds.
func CurrentTimestamp() uint64 {
	return uint64(time.Now().Unix()) //nolint:gosec // wall clock is positive
}

// HexToBytes decodes a hex string with or without the 0x prefix.
func HexToBytes(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, errors.E(errors.KindValidation, "chain.HexToBytes", "invalid hex string", err)
	}
	return b, nil
}

// BytesToHex encodes bytes as a 0x-prefixed lowercase hex string.
func BytesToHex(b []byte) string {
	return hexutil.Encode(b)
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
