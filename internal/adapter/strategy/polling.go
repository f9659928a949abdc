package strategy

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/entity"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/port"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/usecase"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/apperr"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/applog"
)

// PollingStrategy subscribes to a node through a polling BlockStream and
// normalizes eth_getBlockByNumber payloads into domain blocks.
type PollingStrategy struct {
	log      applog.AppLogger
	nodeName string
	stream   port.BlockStream
}

func NewPollingStrategy(log applog.AppLogger, nodeName string, stream port.BlockStream) (*PollingStrategy, error) {
	if log == nil || stream == nil {
		return nil, apperr.NewInvalidArgErr("logger and block stream are required", nil)
	}
	if nodeName == "" {
		return nil, apperr.NewInvalidArgErr("node name is required", nil)
	}
	return &PollingStrategy{log: log, nodeName: nodeName, stream: stream}, nil
}

// Subscribe replays from the recorded start position when there is one and
// otherwise follows the head. Full transaction objects are always requested.
func (p *PollingStrategy) Subscribe(sink usecase.Sink) (port.Subscription, error) {
	if start, ok := sink.StartPosition(); ok {
		p.log.Info("Replaying blocks from start position", "node", p.nodeName, "start", start)
		return p.stream.ReplayPastAndFutureBlocks(start, true, sink.Dispatch, sink.OnError)
	}
	p.log.Info("Following new blocks", "node", p.nodeName)
	return p.stream.FutureBlocks(true, sink.Dispatch, sink.OnError)
}

func (p *PollingStrategy) ConvertToDomainBlock(raw *entity.RawBlock) usecase.Conversion {
	if raw.Empty() {
		return usecase.Skipped()
	}

	block, err := p.decode(raw.Result)
	if err != nil {
		p.log.Error("Failed to convert block",
			"node", p.nodeName, "number", raw.Number, "payload", string(raw.Result), "err", err)
		return usecase.Failed(apperr.NewBlockConvertErr(
			fmt.Sprintf("malformed block %d from node %s", raw.Number, p.nodeName), err))
	}
	return usecase.Converted(block)
}

type rpcBlock struct {
	Hash         *common.Hash        `json:"hash"`
	Transactions []*rpcTransaction   `json:"transactions"`
	UncleHashes  []common.Hash       `json:"uncles"`
	Withdrawals  []*types.Withdrawal `json:"withdrawals,omitempty"`
}

// rpcTransaction is a full transaction object plus the sender the node
// reports next to it.
type rpcTransaction struct {
	tx   *types.Transaction
	from *common.Address
}

func (t *rpcTransaction) UnmarshalJSON(data []byte) error {
	var tx types.Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return err
	}
	var extra struct {
		From *common.Address `json:"from"`
	}
	if err := json.Unmarshal(data, &extra); err != nil {
		return err
	}
	t.tx, t.from = &tx, extra.From
	return nil
}

// sender prefers the node-reported address and recovers it from the
// signature otherwise.
func (t *rpcTransaction) sender() (common.Address, error) {
	if t.from != nil {
		return *t.from, nil
	}
	return types.Sender(types.LatestSignerForChainID(t.tx.ChainId()), t.tx)
}

func (p *PollingStrategy) decode(payload json.RawMessage) (*entity.Block, error) {
	var head types.Header
	if err := json.Unmarshal(payload, &head); err != nil {
		return nil, err
	}
	var body rpcBlock
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, err
	}

	if body.Hash == nil {
		return nil, errors.New("block hash missing")
	}
	if head.UncleHash == types.EmptyUncleHash && len(body.UncleHashes) > 0 {
		return nil, errors.New("non-empty uncle list but header indicates no uncles")
	}
	if head.UncleHash != types.EmptyUncleHash && len(body.UncleHashes) == 0 {
		return nil, errors.New("empty uncle list but header indicates uncles")
	}
	if head.TxHash == types.EmptyTxsHash && len(body.Transactions) > 0 {
		return nil, errors.New("non-empty transaction list but header indicates no transactions")
	}
	if head.TxHash != types.EmptyTxsHash && len(body.Transactions) == 0 {
		return nil, errors.New("empty transaction list but header indicates transactions")
	}

	txs := make(types.Transactions, 0, len(body.Transactions))
	senders := make([]common.Address, 0, len(body.Transactions))
	for i, rtx := range body.Transactions {
		if rtx == nil || rtx.tx == nil {
			return nil, fmt.Errorf("transaction %d is null", i)
		}
		from, err := rtx.sender()
		if err != nil {
			return nil, fmt.Errorf("transaction %d sender: %w", i, err)
		}
		txs = append(txs, rtx.tx)
		senders = append(senders, from)
	}

	return usecase.MapBlock(p.nodeName, *body.Hash, &head, txs, senders, body.UncleHashes, body.Withdrawals), nil
}

var _ usecase.Strategy = (*PollingStrategy)(nil)
