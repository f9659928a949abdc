package usecase

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/entity"
)

// MapBlock builds the domain block from decoded go-ethereum parts. The hash is
// the one reported by the node, which on some chains differs from the hash
// go-ethereum would derive from the header. senders[i] is the sender of txs[i].
func MapBlock(nodeName string, hash common.Hash, header *types.Header, txs types.Transactions, senders []common.Address, uncles []common.Hash, withdrawals types.Withdrawals) *entity.Block {
	if header == nil {
		return nil
	}

	return &entity.Block{
		NodeName:     nodeName,
		Hash:         hash,
		Header:       mapHeader(header),
		Transactions: mapTransactions(txs, senders),
		UncleHashes:  cloneHashes(uncles),
		Withdrawals:  mapWithdrawals(withdrawals),
	}
}

func mapHeader(header *types.Header) entity.Header {
	mapped := entity.Header{
		ParentHash:       header.ParentHash,
		UncleHash:        header.UncleHash,
		Coinbase:         header.Coinbase,
		Root:             header.Root,
		TxHash:           header.TxHash,
		ReceiptHash:      header.ReceiptHash,
		Bloom:            header.Bloom,
		Difficulty:       header.Difficulty,
		GasLimit:         header.GasLimit,
		GasUsed:          header.GasUsed,
		Time:             header.Time,
		Extra:            cloneBytes(header.Extra),
		MixDigest:        header.MixDigest,
		Nonce:            header.Nonce,
		BaseFee:          header.BaseFee,
		WithdrawalsHash:  header.WithdrawalsHash,
		ParentBeaconRoot: header.ParentBeaconRoot,
		BlobGasUsed:      header.BlobGasUsed,
		ExcessBlobGas:    header.ExcessBlobGas,
	}

	if header.Number != nil {
		mapped.Number = header.Number.Uint64()
	}

	return mapped
}

func mapTransactions(txs types.Transactions, senders []common.Address) []entity.Transaction {
	if len(txs) == 0 {
		return nil
	}

	result := make([]entity.Transaction, len(txs))
	for i, tx := range txs {
		var from common.Address
		if i < len(senders) {
			from = senders[i]
		}
		result[i] = entity.Transaction{
			Hash:                 tx.Hash(),
			Index:                uint(i),
			Type:                 tx.Type(),
			From:                 from,
			To:                   tx.To(),
			Value:                tx.Value(),
			Gas:                  tx.Gas(),
			GasPrice:             tx.GasPrice(),
			MaxFeePerGas:         tx.GasFeeCap(),
			MaxPriorityFeePerGas: tx.GasTipCap(),
			Nonce:                tx.Nonce(),
			Data:                 cloneBytes(tx.Data()),
			AccessList:           cloneAccessList(tx.AccessList()),
			ChainID:              tx.ChainId(),
		}
	}

	return result
}

func mapWithdrawals(withdrawals types.Withdrawals) []entity.Withdrawal {
	if len(withdrawals) == 0 {
		return nil
	}

	result := make([]entity.Withdrawal, 0, len(withdrawals))
	for _, withdrawal := range withdrawals {
		if withdrawal == nil {
			continue
		}
		result = append(result, entity.Withdrawal{
			Index:     withdrawal.Index,
			Validator: withdrawal.Validator,
			Address:   withdrawal.Address,
			Amount:    withdrawal.Amount,
		})
	}
	return result
}

func cloneBytes(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out
}

func cloneHashes(hashes []common.Hash) []common.Hash {
	if len(hashes) == 0 {
		return nil
	}
	out := make([]common.Hash, len(hashes))
	copy(out, hashes)
	return out
}

func cloneAccessList(list types.AccessList) types.AccessList {
	if len(list) == 0 {
		return nil
	}

	clone := make(types.AccessList, len(list))
	for i, entry := range list {
		clone[i] = types.AccessTuple{
			Address:     entry.Address,
			StorageKeys: cloneHashes(entry.StorageKeys),
		}
	}
	return clone
}
