package apperr

import "fmt"

const (
	invalidArgumentCode = "INVALID_ARGUMENT"
	internalErrorCode   = "INTERNAL_ERROR"
	blockSubscribeCode  = "BLOCKSUBSCRIBE_ERROR"
	blockStreamCode     = "BLOCKSTREAM_ERROR"
	blockConvertCode    = "BLOCKCONVERT_ERROR"
	checkpointCode      = "CHECKPOINT_ERROR"
	blockPublishCode    = "BLOCKPUBLISH_ERROR"
)

type messageCause struct {
	Msg string
	Err error
}

func (e *messageCause) Message() string { return e.Msg }
func (e *messageCause) Cause() error    { return e.Err }
func (e *messageCause) Unwrap() error   { return e.Err }

func formatError(code, msg string, cause error) string {
	if cause != nil {
		return fmt.Sprintf("[%s] %s: %v", code, msg, cause)
	}
	return fmt.Sprintf("[%s] %s", code, msg)
}

type InvalidArgErr struct {
	messageCause
}

func NewInvalidArgErr(msg string, cause error) *InvalidArgErr {
	return &InvalidArgErr{messageCause: messageCause{Msg: msg, Err: cause}}
}

func (e *InvalidArgErr) Error() string { return formatError(invalidArgumentCode, e.Msg, e.Err) }
func (e *InvalidArgErr) Code() string  { return invalidArgumentCode }

type InternalErr struct {
	messageCause
}

func NewInternalErr(msg string, cause error) *InternalErr {
	return &InternalErr{messageCause: messageCause{Msg: msg, Err: cause}}
}

func (e *InternalErr) Error() string { return formatError(internalErrorCode, e.Msg, e.Err) }
func (e *InternalErr) Code() string  { return internalErrorCode }

// BlockSubscribeErr reports subscription lifecycle failures and misuse.
type BlockSubscribeErr struct {
	messageCause
}

func NewBlockSubscribeErr(msg string, cause error) *BlockSubscribeErr {
	return &BlockSubscribeErr{messageCause: messageCause{Msg: msg, Err: cause}}
}

func (e *BlockSubscribeErr) Error() string { return formatError(blockSubscribeCode, e.Msg, e.Err) }
func (e *BlockSubscribeErr) Code() string  { return blockSubscribeCode }

// BlockStreamErr reports a broken raw block stream (RPC, dial, disconnect).
type BlockStreamErr struct {
	messageCause
}

func NewBlockStreamErr(msg string, cause error) *BlockStreamErr {
	return &BlockStreamErr{messageCause: messageCause{Msg: msg, Err: cause}}
}

func (e *BlockStreamErr) Error() string { return formatError(blockStreamCode, e.Msg, e.Err) }
func (e *BlockStreamErr) Code() string  { return blockStreamCode }

// BlockConvertErr reports a raw block payload that could not be normalized.
type BlockConvertErr struct {
	messageCause
}

func NewBlockConvertErr(msg string, cause error) *BlockConvertErr {
	return &BlockConvertErr{messageCause: messageCause{Msg: msg, Err: cause}}
}

func (e *BlockConvertErr) Error() string { return formatError(blockConvertCode, e.Msg, e.Err) }
func (e *BlockConvertErr) Code() string  { return blockConvertCode }

type CheckpointErr struct {
	messageCause
}

func NewCheckpointErr(msg string, cause error) *CheckpointErr {
	return &CheckpointErr{messageCause: messageCause{Msg: msg, Err: cause}}
}

func (e *CheckpointErr) Error() string { return formatError(checkpointCode, e.Msg, e.Err) }
func (e *CheckpointErr) Code() string  { return checkpointCode }

type BlockPublishErr struct {
	messageCause
}

func NewBlockPublishErr(msg string, cause error) *BlockPublishErr {
	return &BlockPublishErr{messageCause: messageCause{Msg: msg, Err: cause}}
}

func (e *BlockPublishErr) Error() string { return formatError(blockPublishCode, e.Msg, e.Err) }
func (e *BlockPublishErr) Code() string  { return blockPublishCode }
