package usecase

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/entity"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/apperr"
)

// blockJSON is the wire form listeners publish. Quantities use the same hex
// encoding as the Ethereum JSON-RPC API.
type blockJSON struct {
	Node         string           `json:"node"`
	Hash         common.Hash      `json:"hash"`
	Header       headerJSON       `json:"header"`
	Transactions []txJSON         `json:"transactions,omitempty"`
	UncleHashes  []common.Hash    `json:"uncles,omitempty"`
	Withdrawals  []withdrawalJSON `json:"withdrawals,omitempty"`
}

type headerJSON struct {
	ParentHash       common.Hash      `json:"parentHash"`
	UncleHash        common.Hash      `json:"sha3Uncles"`
	Coinbase         common.Address   `json:"miner"`
	Root             common.Hash      `json:"stateRoot"`
	TxHash           common.Hash      `json:"transactionsRoot"`
	ReceiptHash      common.Hash      `json:"receiptsRoot"`
	Bloom            types.Bloom      `json:"logsBloom"`
	Difficulty       *hexutil.Big     `json:"difficulty,omitempty"`
	Number           hexutil.Uint64   `json:"number"`
	GasLimit         hexutil.Uint64   `json:"gasLimit"`
	GasUsed          hexutil.Uint64   `json:"gasUsed"`
	Time             hexutil.Uint64   `json:"timestamp"`
	Extra            hexutil.Bytes    `json:"extraData,omitempty"`
	MixDigest        common.Hash      `json:"mixHash"`
	Nonce            types.BlockNonce `json:"nonce"`
	BaseFee          *hexutil.Big     `json:"baseFeePerGas,omitempty"`
	WithdrawalsHash  *common.Hash     `json:"withdrawalsRoot,omitempty"`
	ParentBeaconRoot *common.Hash     `json:"parentBeaconBlockRoot,omitempty"`
	BlobGasUsed      *hexutil.Uint64  `json:"blobGasUsed,omitempty"`
	ExcessBlobGas    *hexutil.Uint64  `json:"excessBlobGas,omitempty"`
}

type txJSON struct {
	Hash                 common.Hash      `json:"hash"`
	Index                hexutil.Uint     `json:"transactionIndex"`
	Type                 hexutil.Uint64   `json:"type"`
	From                 common.Address   `json:"from"`
	To                   *common.Address  `json:"to"`
	Value                *hexutil.Big     `json:"value"`
	Gas                  hexutil.Uint64   `json:"gas"`
	GasPrice             *hexutil.Big     `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big     `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big     `json:"maxPriorityFeePerGas,omitempty"`
	Nonce                hexutil.Uint64   `json:"nonce"`
	Data                 hexutil.Bytes    `json:"input"`
	AccessList           types.AccessList `json:"accessList,omitempty"`
	ChainID              *hexutil.Big     `json:"chainId,omitempty"`
}

type withdrawalJSON struct {
	Index     hexutil.Uint64 `json:"index"`
	Validator hexutil.Uint64 `json:"validatorIndex"`
	Address   common.Address `json:"address"`
	Amount    hexutil.Uint64 `json:"amount"`
}

// MarshalBlockJSON encodes a domain block for publishing.
func MarshalBlockJSON(block *entity.Block) ([]byte, error) {
	if block == nil {
		return nil, apperr.NewInvalidArgErr("block is nil", nil)
	}

	h := block.Header
	out := blockJSON{
		Node: block.NodeName,
		Hash: block.Hash,
		Header: headerJSON{
			ParentHash:       h.ParentHash,
			UncleHash:        h.UncleHash,
			Coinbase:         h.Coinbase,
			Root:             h.Root,
			TxHash:           h.TxHash,
			ReceiptHash:      h.ReceiptHash,
			Bloom:            h.Bloom,
			Difficulty:       (*hexutil.Big)(h.Difficulty),
			Number:           hexutil.Uint64(h.Number),
			GasLimit:         hexutil.Uint64(h.GasLimit),
			GasUsed:          hexutil.Uint64(h.GasUsed),
			Time:             hexutil.Uint64(h.Time),
			Extra:            h.Extra,
			MixDigest:        h.MixDigest,
			Nonce:            h.Nonce,
			BaseFee:          (*hexutil.Big)(h.BaseFee),
			WithdrawalsHash:  h.WithdrawalsHash,
			ParentBeaconRoot: h.ParentBeaconRoot,
			BlobGasUsed:      (*hexutil.Uint64)(h.BlobGasUsed),
			ExcessBlobGas:    (*hexutil.Uint64)(h.ExcessBlobGas),
		},
		UncleHashes: block.UncleHashes,
	}

	for _, tx := range block.Transactions {
		out.Transactions = append(out.Transactions, txJSON{
			Hash:                 tx.Hash,
			Index:                hexutil.Uint(tx.Index),
			Type:                 hexutil.Uint64(tx.Type),
			From:                 tx.From,
			To:                   tx.To,
			Value:                (*hexutil.Big)(tx.Value),
			Gas:                  hexutil.Uint64(tx.Gas),
			GasPrice:             (*hexutil.Big)(tx.GasPrice),
			MaxFeePerGas:         (*hexutil.Big)(tx.MaxFeePerGas),
			MaxPriorityFeePerGas: (*hexutil.Big)(tx.MaxPriorityFeePerGas),
			Nonce:                hexutil.Uint64(tx.Nonce),
			Data:                 tx.Data,
			AccessList:           tx.AccessList,
			ChainID:              (*hexutil.Big)(tx.ChainID),
		})
	}
	for _, w := range block.Withdrawals {
		out.Withdrawals = append(out.Withdrawals, withdrawalJSON{
			Index:     hexutil.Uint64(w.Index),
			Validator: hexutil.Uint64(w.Validator),
			Address:   w.Address,
			Amount:    hexutil.Uint64(w.Amount),
		})
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, apperr.NewInternalErr("failed to encode block", err)
	}
	return data, nil
}

// unmarshalBlockJSON decodes a payload produced by MarshalBlockJSON.
func unmarshalBlockJSON(data []byte) (*entity.Block, error) {
	var in blockJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, apperr.NewInvalidArgErr("failed to decode block", err)
	}

	h := in.Header
	block := &entity.Block{
		NodeName: in.Node,
		Hash:     in.Hash,
		Header: entity.Header{
			ParentHash:       h.ParentHash,
			UncleHash:        h.UncleHash,
			Coinbase:         h.Coinbase,
			Root:             h.Root,
			TxHash:           h.TxHash,
			ReceiptHash:      h.ReceiptHash,
			Bloom:            h.Bloom,
			Difficulty:       h.Difficulty.ToInt(),
			Number:           uint64(h.Number),
			GasLimit:         uint64(h.GasLimit),
			GasUsed:          uint64(h.GasUsed),
			Time:             uint64(h.Time),
			Extra:            h.Extra,
			MixDigest:        h.MixDigest,
			Nonce:            h.Nonce,
			BaseFee:          h.BaseFee.ToInt(),
			WithdrawalsHash:  h.WithdrawalsHash,
			ParentBeaconRoot: h.ParentBeaconRoot,
			BlobGasUsed:      (*uint64)(h.BlobGasUsed),
			ExcessBlobGas:    (*uint64)(h.ExcessBlobGas),
		},
		UncleHashes: in.UncleHashes,
	}

	for _, tx := range in.Transactions {
		block.Transactions = append(block.Transactions, entity.Transaction{
			Hash:                 tx.Hash,
			Index:                uint(tx.Index),
			Type:                 uint8(tx.Type),
			From:                 tx.From,
			To:                   tx.To,
			Value:                tx.Value.ToInt(),
			Gas:                  uint64(tx.Gas),
			GasPrice:             tx.GasPrice.ToInt(),
			MaxFeePerGas:         tx.MaxFeePerGas.ToInt(),
			MaxPriorityFeePerGas: tx.MaxPriorityFeePerGas.ToInt(),
			Nonce:                uint64(tx.Nonce),
			Data:                 tx.Data,
			AccessList:           tx.AccessList,
			ChainID:              tx.ChainID.ToInt(),
		})
	}
	for _, w := range in.Withdrawals {
		block.Withdrawals = append(block.Withdrawals, entity.Withdrawal{
			Index:     uint64(w.Index),
			Validator: uint64(w.Validator),
			Address:   w.Address,
			Amount:    uint64(w.Amount),
		})
	}

	return block, nil
}
