package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/do/v2"
	"go.uber.org/zap"

	"github.com/kevinaud/rpc-streaming-prototype/internal/broadcast"
	"github.com/kevinaud/rpc-streaming-prototype/internal/config"
	"github.com/kevinaud/rpc-streaming-prototype/internal/feed"
	"github.com/kevinaud/rpc-streaming-prototype/internal/metrics"
	"github.com/kevinaud/rpc-streaming-prototype/internal/monitor"
	"github.com/kevinaud/rpc-streaming-prototype/internal/service"
	"github.com/kevinaud/rpc-streaming-prototype/internal/session"
	"github.com/kevinaud/rpc-streaming-prototype/internal/ws"
)

func setupDI(cfg *config.Config, log *zap.Logger) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, log)

	do.Provide(injector, func(i do.Injector) (*prometheus.Registry, error) {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		return reg, nil
	})

	do.Provide(injector, func(i do.Injector) (*metrics.Metrics, error) {
		return metrics.New(do.MustInvoke[*prometheus.Registry](i)), nil
	})

	do.Provide(injector, func(i do.Injector) (*broadcast.Broadcaster, error) {
		c := do.MustInvoke[*config.Config](i)
		return broadcast.NewBroadcaster(
			c.Stream.BufferSize,
			do.MustInvoke[*zap.Logger](i).Named("broadcast"),
			do.MustInvoke[*metrics.Metrics](i),
		), nil
	})

	// Nil when no NATS URL is configured.
	do.Provide(injector, func(i do.Injector) (*feed.Publisher, error) {
		c := do.MustInvoke[*config.Config](i)
		if c.Feed.NATSURL == "" {
			return nil, nil
		}
		return feed.Connect(c.Feed.NATSURL, c.Feed.SubjectPrefix, do.MustInvoke[*zap.Logger](i).Named("feed"))
	})

	do.Provide(injector, func(i do.Injector) (*service.Service, error) {
		opts := []service.Option{service.WithMetrics(do.MustInvoke[*metrics.Metrics](i))}
		pub, err := do.Invoke[*feed.Publisher](i)
		if err != nil {
			return nil, err
		}
		if pub != nil {
			opts = append(opts, service.WithPublisher(pub))
		}
		return service.New(
			session.NewStore(),
			do.MustInvoke[*broadcast.Broadcaster](i),
			do.MustInvoke[*zap.Logger](i).Named("service"),
			opts...,
		), nil
	})

	do.Provide(injector, func(i do.Injector) (*monitor.Reporter, error) {
		return monitor.NewReporter(do.MustInvoke[*service.Service](i).Stats)
	})

	do.Provide(injector, func(i do.Injector) (*ws.Server, error) {
		return ws.NewServer(
			do.MustInvoke[*config.Config](i),
			do.MustInvoke[*service.Service](i),
			do.MustInvoke[*zap.Logger](i).Named("http"),
			ws.WithHealth(do.MustInvoke[*monitor.Reporter](i)),
			ws.WithGatherer(do.MustInvoke[*prometheus.Registry](i)),
		), nil
	})

	return injector
}
