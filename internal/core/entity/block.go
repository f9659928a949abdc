package entity

import (
	"bytes"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Block is the node-agnostic view of a chain block handed to listeners.
// It is built once by a strategy's conversion step and never mutated after.
type Block struct {
	// NodeName identifies the monitored node the block was observed on.
	NodeName     string      `validate:"required"`
	Hash         common.Hash `validate:"required"`
	Header       Header
	Transactions []Transaction
	UncleHashes  []common.Hash
	Withdrawals  []Withdrawal
}

func (b *Block) Number() uint64 { return b.Header.Number }

func (b *Block) ParentHash() common.Hash { return b.Header.ParentHash }

// Timestamp is the block time in seconds since the epoch.
func (b *Block) Timestamp() uint64 { return b.Header.Time }

// Header is the subset of header fields downstream event matching relies on.
type Header struct {
	ParentHash       common.Hash
	UncleHash        common.Hash
	Coinbase         common.Address
	Root             common.Hash
	TxHash           common.Hash
	ReceiptHash      common.Hash
	Bloom            types.Bloom
	Difficulty       *big.Int
	Number           uint64
	GasLimit         uint64
	GasUsed          uint64
	Time             uint64
	Extra            []byte
	MixDigest        common.Hash
	Nonce            types.BlockNonce
	BaseFee          *big.Int
	WithdrawalsHash  *common.Hash
	ParentBeaconRoot *common.Hash
	BlobGasUsed      *uint64
	ExcessBlobGas    *uint64
}

// Transaction captures the transaction fields needed to match events.
type Transaction struct {
	Hash                 common.Hash
	Index                uint
	Type                 uint8
	From                 common.Address
	To                   *common.Address
	Value                *big.Int
	Gas                  uint64
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	Nonce                uint64
	Data                 []byte
	AccessList           types.AccessList
	ChainID              *big.Int
}

// Withdrawal represents a single withdrawal entry from a block (Shanghai+).
type Withdrawal struct {
	Index     uint64
	Validator uint64
	Address   common.Address
	Amount    uint64
}

var nullPayload = []byte("null")

// RawBlock is one eth_getBlockByNumber response as delivered by a node
// block stream, before normalization.
type RawBlock struct {
	// Number is the height that was requested from the node.
	Number uint64
	// Result is the JSON-RPC result member; nil or null when the node
	// answered with an empty envelope.
	Result json.RawMessage
}

// Empty reports whether the envelope carries no block payload.
func (r *RawBlock) Empty() bool {
	if r == nil {
		return true
	}
	trimmed := bytes.TrimSpace(r.Result)
	return len(trimmed) == 0 || bytes.Equal(trimmed, nullPayload)
}
