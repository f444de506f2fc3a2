package main

import (
	"github.com/redis/go-redis/v9"

	"fleetcore/config"
	"fleetcore/monitoring"
	"fleetcore/pool"
)

type metricsBundle struct {
	fleet     *monitoring.FleetMetrics
	collector *monitoring.SystemCollector
	sink      monitoring.Sink
}

func monitoringMetrics() metricsBundle {
	fleet := monitoring.NewFleetMetrics()
	return metricsBundle{
		fleet:     fleet,
		collector: monitoring.NewSystemCollector(fleet),
		sink:      monitoring.NewCustomSink(),
	}
}

func monitoringHealth(p *pool.Pool) *monitoring.HealthChecker {
	h := monitoring.NewHealthChecker()
	h.AddCheck("pool", func() error {
		p.Metrics()
		return nil
	})
	return h
}

func newRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
