package stream

// Config holds the connection settings of one node's block stream.
//
// URL is the node's JSON-RPC endpoint (http, https, ws or wss). The stream
// polls eth_blockNumber every PollIntervalMS and fetches each new height with
// eth_getBlockByNumber, bounded by FetchTimeoutMS.
type Config struct {
	URL                       string  `validate:"required,uri"`
	PollIntervalMS            int     `validate:"gte=0"`
	FetchTimeoutMS            int     `validate:"gte=0"`
	DialMaxRetryAttempts      int     `validate:"gte=0"`
	DialRetryInitialBackoffMS int     `validate:"gte=0"`
	DialRetryMaxBackoffMS     int     `validate:"gte=0"`
	DialRetryJitter           float64 `validate:"gte=0,lte=1"`
}
