package api

import (
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/scrutinychain/sdk/pkg/chain"
)

// TransactionRequest is one element of a batch request body. Data is
// 0x-prefixed hex.
//
//	[{"hash":"0x12","from":"0xab","to":"0xcd","value":1000,"gas_price":150,
//	  "gas_limit":21000,"nonce":5,"data":"0x"}]
type TransactionRequest struct {
	Hash      chain.Hash     `json:"hash"`
	From      chain.Address  `json:"from"`
	To        *chain.Address `json:"to,omitempty"`
	Value     uint64         `json:"value"`
	GasPrice  uint64         `json:"gas_price"`
	GasLimit  uint64         `json:"gas_limit"`
	Nonce     uint64         `json:"nonce"`
	Data      hexutil.Bytes  `json:"data,omitempty"`
	Timestamp uint64         `json:"timestamp,omitempty"`
}

// Transaction converts the request. A nil request (a JSON null element)
// stays nil so the processor records it under the empty hash.
func (r *TransactionRequest) Transaction() *chain.Transaction {
	if r == nil {
		return nil
	}
	ts := r.Timestamp
	if ts == 0 {
		ts = chain.CurrentTimestamp()
	}
	return &chain.Transaction{
		Hash:      r.Hash,
		From:      r.From,
		To:        r.To,
		Value:     r.Value,
		GasPrice:  r.GasPrice,
		GasLimit:  r.GasLimit,
		Nonce:     r.Nonce,
		Data:      []byte(r.Data),
		Timestamp: ts,
	}
}
