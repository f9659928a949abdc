package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	nethttp "net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/pancudaniel7/blocksub-ethereum-service/internal/adapter/http"
)

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Trace(string, ...any) {}
func (noopLogger) Fatal(string, ...any) {}

// chainNode serves empty blocks 0..head over the eth namespace. Heights in
// failOnce answer one RPC error and heights in malformedOnce one block that
// cannot be decoded.
type chainNode struct {
	mu            sync.Mutex
	head          uint64
	failOnce      map[uint64]bool
	malformedOnce map[uint64]bool
	served        map[uint64]int
}

func (c *chainNode) BlockNumber() hexutil.Uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return hexutil.Uint64(c.head)
}

func (c *chainNode) GetBlockByNumber(number hexutil.Uint64, _ bool) (json.RawMessage, error) {
	n := uint64(number)
	c.mu.Lock()
	if c.served == nil {
		c.served = map[uint64]int{}
	}
	c.served[n]++
	failing, malformed := c.failOnce[n], c.malformedOnce[n]
	delete(c.failOnce, n)
	delete(c.malformedOnce, n)
	c.mu.Unlock()

	if failing {
		return nil, fmt.Errorf("height %d temporarily unavailable", n)
	}
	if malformed {
		return json.RawMessage(fmt.Sprintf(`{"number":%q,"hash":"%s"}`, hexutil.EncodeUint64(n), common.BigToHash(big.NewInt(int64(n))).Hex())), nil
	}

	header := &types.Header{
		ParentHash: common.BigToHash(big.NewInt(int64(number))),
		UncleHash:  types.EmptyUncleHash,
		TxHash:     types.EmptyTxsHash,
		Difficulty: big.NewInt(0),
		Number:     new(big.Int).SetUint64(uint64(number)),
		GasLimit:   30_000_000,
		Time:       1_700_000_000 + uint64(number)*12,
		Extra:      []byte{},
	}
	encoded, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(encoded, &fields); err != nil {
		return nil, err
	}
	fields["transactions"] = []any{}
	fields["uncles"] = []any{}
	return json.Marshal(fields)
}

func (c *chainNode) timesServed(n uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.served[n]
}

func (c *chainNode) setHead(n uint64) {
	c.mu.Lock()
	c.head = n
	c.mu.Unlock()
}

func startChainNode(t *testing.T, head uint64) (*chainNode, string) {
	t.Helper()
	node := &chainNode{head: head}
	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", node))
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		srv.Stop()
	})
	return node, ts.URL
}

func appConfig(nodeURL string) string {
	return fmt.Sprintf(`
service:
  name: blocksub-test
subscription:
  resubscribe:
    initial_delay_ms: 10
nodes:
  - name: mainnet
    url: %s
    poll_interval_ms: 10
    fetch_timeout_ms: 1000
`, nodeURL)
}

func waitForCheckpoint(t *testing.T, app *App, node string, want uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		got, ok := app.Checkpoints().GetStartPosition(node)
		return ok && got == want
	}, 5*time.Second, 10*time.Millisecond)
}

func TestApp_FollowsHeadAndAdvancesCheckpoint(t *testing.T) {
	chain, url := startChainNode(t, 3)
	loadTestConfig(t, appConfig(url))
	viper.Set("http.addr", "")
	viper.Set("checkpoint.bolt.path", filepath.Join(t.TempDir(), "cp.db"))

	app, err := NewApp(noopLogger{})
	require.NoError(t, err)
	require.NoError(t, app.Start())

	waitForCheckpoint(t, app, "mainnet", 3)
	chain.setHead(6)
	waitForCheckpoint(t, app, "mainnet", 6)

	statuses := app.Subscriptions()
	require.Len(t, statuses, 1)
	require.Equal(t, "mainnet", statuses[0].Node)
	require.Equal(t, "active", statuses[0].State)
	require.NotEmpty(t, statuses[0].SubscriptionID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, app.Stop(ctx))

	require.Equal(t, "unsubscribed", app.Subscriptions()[0].State)
}

func TestApp_RecoversFromStreamAndConversionFailures(t *testing.T) {
	chain, url := startChainNode(t, 2)
	loadTestConfig(t, appConfig(url))
	viper.Set("http.addr", "")
	viper.Set("checkpoint.bolt.path", filepath.Join(t.TempDir(), "cp.db"))

	app, err := NewApp(noopLogger{})
	require.NoError(t, err)
	require.NoError(t, app.Start())
	waitForCheckpoint(t, app, "mainnet", 2)

	chain.mu.Lock()
	chain.failOnce = map[uint64]bool{3: true}
	chain.malformedOnce = map[uint64]bool{6: true}
	chain.head = 8
	chain.mu.Unlock()

	waitForCheckpoint(t, app, "mainnet", 8)
	require.GreaterOrEqual(t, chain.timesServed(3), 2)
	require.GreaterOrEqual(t, chain.timesServed(6), 2)
	require.Equal(t, "active", app.Subscriptions()[0].State)

	require.NoError(t, app.Stop(context.Background()))
}

func TestApp_ResumesFromCheckpoint(t *testing.T) {
	chain, url := startChainNode(t, 2)
	loadTestConfig(t, appConfig(url))
	viper.Set("http.addr", "")
	viper.Set("checkpoint.bolt.path", filepath.Join(t.TempDir(), "cp.db"))

	first, err := NewApp(noopLogger{})
	require.NoError(t, err)
	require.NoError(t, first.Start())
	waitForCheckpoint(t, first, "mainnet", 2)
	require.NoError(t, first.Stop(context.Background()))

	chain.setHead(5)
	second, err := NewApp(noopLogger{})
	require.NoError(t, err)
	require.NoError(t, second.Start())
	waitForCheckpoint(t, second, "mainnet", 5)
	require.NoError(t, second.Stop(context.Background()))
}

func TestApp_Routes(t *testing.T) {
	_, url := startChainNode(t, 0)
	loadTestConfig(t, appConfig(url))
	viper.Set("http.addr", "")
	viper.Set("checkpoint.bolt.path", filepath.Join(t.TempDir(), "cp.db"))

	app, err := NewApp(noopLogger{})
	require.NoError(t, err)
	defer func() { require.NoError(t, app.Stop(context.Background())) }()

	get := func(path string) (int, string) {
		resp, err := app.server.Test(httptest.NewRequest(nethttp.MethodGet, path, nil))
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	status, _ := get("/ready")
	require.Equal(t, nethttp.StatusServiceUnavailable, status)

	require.NoError(t, app.Start())
	require.Eventually(t, func() bool {
		status, _ := get("/ready")
		return status == nethttp.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	status, body := get("/subscriptions")
	require.Equal(t, nethttp.StatusOK, status)
	var subs []http.SubscriptionStatus
	require.NoError(t, json.Unmarshal([]byte(body), &subs))
	require.Len(t, subs, 1)
	require.Equal(t, "mainnet", subs[0].Node)

	status, _ = get("/health")
	require.Equal(t, nethttp.StatusOK, status)

	status, body = get("/metrics")
	require.Equal(t, nethttp.StatusOK, status)
	require.Contains(t, body, "service_build_info")
}

func TestNewApp_InvalidConfig(t *testing.T) {
	loadTestConfig(t, "checkpoint:\n  backend: bolt\n")

	app, err := NewApp(noopLogger{})
	require.Error(t, err)
	require.Nil(t, app)
}
