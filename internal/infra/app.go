package infra

import (
	"context"
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/pancudaniel7/blocksub-ethereum-service/internal/adapter/http"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/port"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/usecase"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/apperr"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/applog"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/pattern"
)

// App owns every long-lived component of the service.
type App struct {
	log         applog.AppLogger
	wg          sync.WaitGroup
	executor    *pattern.GoExecutor
	server      *fiber.App
	listeners   *usecase.ListenerRegistry
	checkpoints port.CheckpointStore
	subscribers []*usecase.BlockSubscriber
	serving     bool
	closers     []func() error
	stopPprof   func(context.Context) error
}

// NewApp builds the application from the loaded configuration. Listeners run
// in registration order; the checkpoint listener is registered last so a
// checkpoint only advances after every other listener saw the block.
func NewApp(log applog.AppLogger) (app *App, err error) {
	v := validator.New()
	app = &App{
		log:      log,
		executor: pattern.NewGoExecutor(log),
		server:   fiber.New(fiber.Config{AppName: viper.GetString("service.name")}),
	}
	defer func() {
		if err != nil {
			app.close()
			app = nil
		}
	}()
	InitMetrics(app.server)

	nodes, err := LoadNodeConfigs(v)
	if err != nil {
		return app, err
	}

	var rdb *redis.Client
	redisClient := func() (*redis.Client, error) {
		if rdb != nil {
			return rdb, nil
		}
		client, err := InitRedisClient(v)
		if err != nil {
			return nil, err
		}
		rdb = client
		app.closers = append(app.closers, client.Close)
		return rdb, nil
	}

	checkpoints, closeCheckpoints, err := InitCheckpointStore(log, v, redisClient)
	if err != nil {
		return app, err
	}
	app.checkpoints = checkpoints
	app.closers = append(app.closers, closeCheckpoints)

	app.listeners = usecase.NewListenerRegistry(usecase.NewLoggingListener(log))
	if viper.GetBool("kafka.enabled") {
		publisher, err := InitBlockPublisher(log, v)
		if err != nil {
			return app, err
		}
		app.listeners.Register(publisher)
		app.closers = append(app.closers, func() error { publisher.Close(); return nil })
	}
	if viper.GetBool("redis_stream.enabled") {
		client, err := redisClient()
		if err != nil {
			return app, err
		}
		streamPublisher, err := InitStreamPublisher(log, v, client)
		if err != nil {
			return app, err
		}
		app.listeners.Register(streamPublisher)
	}
	checkpointListener, err := usecase.NewCheckpointListener(checkpoints)
	if err != nil {
		return app, err
	}
	app.listeners.Register(checkpointListener)

	for _, node := range nodes {
		sub, err := InitNodeSubscriber(log, &app.wg, v, node, checkpoints, app.executor, app.listeners)
		if err != nil {
			return app, err
		}
		app.subscribers = append(app.subscribers, sub)
	}

	InitRoutes(app.server, app)
	return app, nil
}

// Start serves HTTP and subscribes every node. A node that fails its first
// subscribe fails the start; nodes already subscribed stay running until Stop.
func (a *App) Start() error {
	a.stopPprof = StartPprof(a.log, &a.wg)

	if addr := viper.GetString("http.addr"); addr != "" {
		a.serving = true
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.log.Info("Starting HTTP server", "addr", addr)
			if err := a.server.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
				a.log.Error("HTTP server stopped", "err", err)
			}
		}()
	}

	for _, sub := range a.subscribers {
		_, err := sub.Subscribe()
		if errors.Is(err, usecase.ErrSubscriptionClosed) {
			// the first stream failed right away; the subscriber is already recovering
			continue
		}
		if err != nil {
			return apperr.NewBlockSubscribeErr("failed to subscribe node "+sub.NodeName(), err)
		}
	}
	a.log.Info("Service started", "nodes", len(a.subscribers), "listeners", a.listeners.Len())
	return nil
}

// Stop unsubscribes every node, waits for in-flight work and releases resources.
func (a *App) Stop(ctx context.Context) error {
	for _, sub := range a.subscribers {
		sub.Unsubscribe()
	}
	a.executor.Wait()

	var errs []error
	if a.serving {
		if err := a.server.ShutdownWithContext(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.stopPprof != nil {
		if err := a.stopPprof(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.wg.Wait()
	errs = append(errs, a.close())

	a.log.Info("Service stopped")
	return errors.Join(errs...)
}

func (a *App) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Subscriptions reports the state of every node subscription.
func (a *App) Subscriptions() []http.SubscriptionStatus {
	out := make([]http.SubscriptionStatus, 0, len(a.subscribers))
	for _, sub := range a.subscribers {
		status := http.SubscriptionStatus{Node: sub.NodeName(), State: sub.State().String()}
		if active := sub.Active(); active != nil {
			status.SubscriptionID = active.ID()
		}
		out = append(out, status)
	}
	return out
}

// Checkpoints exposes the checkpoint store the service advances.
func (a *App) Checkpoints() port.CheckpointProvider { return a.checkpoints }
