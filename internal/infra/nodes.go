package infra

import (
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/pancudaniel7/blocksub-ethereum-service/internal/adapter/strategy"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/adapter/stream"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/port"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/usecase"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/apperr"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/applog"
)

// NodeConfig is one entry of the "nodes" list.
type NodeConfig struct {
	Name                      string  `mapstructure:"name" validate:"required"`
	URL                       string  `mapstructure:"url" validate:"required"`
	PollIntervalMS            int     `mapstructure:"poll_interval_ms"`
	FetchTimeoutMS            int     `mapstructure:"fetch_timeout_ms"`
	DialMaxRetryAttempts      int     `mapstructure:"dial_max_retry_attempts"`
	DialRetryInitialBackoffMS int     `mapstructure:"dial_retry_initial_backoff_ms"`
	DialRetryMaxBackoffMS     int     `mapstructure:"dial_retry_max_backoff_ms"`
	DialRetryJitter           float64 `mapstructure:"dial_retry_jitter"`
}

// LoadNodeConfigs reads and validates the configured nodes. Names must be unique.
func LoadNodeConfigs(v *validator.Validate) ([]NodeConfig, error) {
	var nodes []NodeConfig
	if err := viper.UnmarshalKey("nodes", &nodes); err != nil {
		return nil, apperr.NewInvalidArgErr("failed to parse nodes", err)
	}
	if len(nodes) == 0 {
		return nil, apperr.NewInvalidArgErr("at least one node must be configured", nil)
	}

	seen := make(map[string]struct{}, len(nodes))
	for i := range nodes {
		if err := v.Struct(&nodes[i]); err != nil {
			return nil, apperr.NewInvalidArgErr("invalid node config", err)
		}
		if _, dup := seen[nodes[i].Name]; dup {
			return nil, apperr.NewInvalidArgErr("duplicate node name "+nodes[i].Name, nil)
		}
		seen[nodes[i].Name] = struct{}{}
	}
	return nodes, nil
}

func loadResubscribeConfig() usecase.ResubscribeConfig {
	return usecase.ResubscribeConfig{
		InitialDelayMS: viper.GetInt("subscription.resubscribe.initial_delay_ms"),
		MaxDelayMS:     viper.GetInt("subscription.resubscribe.max_delay_ms"),
		Multiplier:     viper.GetFloat64("subscription.resubscribe.multiplier"),
		Jitter:         viper.GetFloat64("subscription.resubscribe.jitter"),
		MaxAttempts:    viper.GetInt("subscription.resubscribe.max_attempts"),
	}
}

// InitNodeSubscriber wires stream, strategy and subscriber for one node.
func InitNodeSubscriber(
	log applog.AppLogger,
	wg *sync.WaitGroup,
	v *validator.Validate,
	node NodeConfig,
	checkpoints port.CheckpointProvider,
	executor port.AsyncExecutor,
	listeners port.ListenerSet,
) (*usecase.BlockSubscriber, error) {
	streamCfg := stream.Config{
		URL:                       node.URL,
		PollIntervalMS:            node.PollIntervalMS,
		FetchTimeoutMS:            node.FetchTimeoutMS,
		DialMaxRetryAttempts:      node.DialMaxRetryAttempts,
		DialRetryInitialBackoffMS: node.DialRetryInitialBackoffMS,
		DialRetryMaxBackoffMS:     node.DialRetryMaxBackoffMS,
		DialRetryJitter:           node.DialRetryJitter,
	}
	blockStream, err := stream.NewPollingBlockStream(log, wg, &streamCfg, v)
	if err != nil {
		return nil, err
	}

	polling, err := strategy.NewPollingStrategy(log, node.Name, blockStream)
	if err != nil {
		return nil, err
	}

	cfg := usecase.SubscriberConfig{NodeName: node.Name, Resubscribe: loadResubscribeConfig()}
	return usecase.NewBlockSubscriber(log, &cfg, v, polling, checkpoints, executor, listeners)
}
