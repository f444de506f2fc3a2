// Command fleetd runs the headless browser fleet core service: the
// browser pool, action executor, session store, and token issuer behind
// the corecontract.Core boundary, plus the health/metrics mux.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"fleetcore/artifacts"
	"fleetcore/auth"
	"fleetcore/circuitbreaker"
	"fleetcore/config"
	"fleetcore/corecontract"
	"fleetcore/executor"
	"fleetcore/httpobs"
	"fleetcore/logger"
	"fleetcore/models/browser"
	"fleetcore/pagemanager"
	"fleetcore/pool"
	"fleetcore/ratelimit"
	"fleetcore/sessionstore"
	"fleetcore/shutdown"
	"fleetcore/store/mongostore"
)

var version = "dev"

// exit codes: 0 success, 1 runtime error, 2 configuration error.
const (
	exitOK     = 0
	exitError  = 1
	exitConfig = 2
)

var cli struct {
	Start struct {
		Config string `help:"Path to the fleetd config file." default:"fleetd.yaml"`
	} `cmd:"" help:"Run the fleet service until terminated."`

	Config struct {
		Init struct {
			Path string `arg:"" optional:"" default:"fleetd.yaml" help:"Where to write the default config."`
		} `cmd:"" help:"Write a default config file."`
		Validate struct {
			Path string `arg:"" optional:"" default:"fleetd.yaml" help:"Config file to validate."`
		} `cmd:"" help:"Load and validate a config file without starting the service."`
	} `cmd:"" help:"Configuration management."`

	TestConnection struct {
		Config string `help:"Path to the fleetd config file." default:"fleetd.yaml"`
	} `cmd:"" help:"Check connectivity to Mongo, Redis, and the artifact bucket."`

	Version kong.VersionFlag `help:"Print the fleetd version and exit."`
}

func main() {
	parser := kong.Must(&cli,
		kong.Name("fleetd"),
		kong.Description("Headless browser fleet core service."),
		kong.Vars{"version": version},
	)
	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	var code int
	switch kctx.Command() {
	case "start":
		code = runStart(cli.Start.Config)
	case "config init <path>":
		code = runConfigInit(cli.Config.Init.Path)
	case "config validate <path>":
		code = runConfigValidate(cli.Config.Validate.Path)
	case "test-connection":
		code = runTestConnection(cli.TestConnection.Config)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", kctx.Command())
		code = exitError
	}
	os.Exit(code)
}

func runConfigInit(path string) int {
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(os.Stderr, "refusing to overwrite existing file %s\n", path)
		return exitConfig
	}
	if err := os.WriteFile(path, config.DefaultConfig, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "writing %s: %v\n", path, err)
		return exitError
	}
	fmt.Printf("wrote default config to %s\n", path)
	return exitOK
}

func runConfigValidate(path string) int {
	mgr, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config invalid: %v\n", err)
		return exitConfig
	}
	fmt.Printf("%s: ok (application=%s listen=%s)\n", path, mgr.Get().Application, mgr.Get().Listen)
	return exitOK
}

func runTestConnection(path string) int {
	mgr, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config invalid: %v\n", err)
		return exitConfig
	}
	cfg := mgr.Get()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ok := true
	if cfg.Mongo.URI != "" {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil || client.Ping(ctx, nil) != nil {
			fmt.Printf("mongo: FAIL (%v)\n", err)
			ok = false
		} else {
			fmt.Println("mongo: ok")
			_ = client.Disconnect(ctx)
		}
	}
	if cfg.Redis.Addr != "" {
		rdb := newRedisClient(cfg.Redis)
		if err := rdb.Ping(ctx).Err(); err != nil {
			fmt.Printf("redis: FAIL (%v)\n", err)
			ok = false
		} else {
			fmt.Println("redis: ok")
		}
		_ = rdb.Close()
	}
	if cfg.Artifacts.Bucket != "" {
		if _, err := artifacts.New(artifacts.Config{Bucket: cfg.Artifacts.Bucket, Region: cfg.Artifacts.Region}); err != nil {
			fmt.Printf("artifacts: FAIL (%v)\n", err)
			ok = false
		} else {
			fmt.Println("artifacts: ok (session constructed)")
		}
	}
	if !ok {
		return exitError
	}
	return exitOK
}

func runStart(path string) int {
	mgr, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config invalid: %v\n", err)
		return exitConfig
	}
	cfg := mgr.Get()

	logger.InitLoggerWithOptions(logger.Options{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		File:       cfg.Logger.File,
		MaxSizeMB:  cfg.Logger.MaxSizeMB,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAgeDays: cfg.Logger.MaxAgeDays,
		Compress:   cfg.Logger.Compress,
	})
	logger.Info("starting fleetd", zap.String("version", version), zap.String("config", path))

	drivers := map[browser.Driver]pool.Driver{}
	if pwDriver, err := pool.NewPlaywrightDriver(); err != nil {
		logger.Warn("playwright driver unavailable", zap.Error(err))
	} else {
		drivers[browser.DriverPlaywright] = pwDriver
	}
	drivers[browser.DriverRod] = pool.NewRodDriver()
	if len(drivers) == 0 {
		fmt.Fprintln(os.Stderr, "no browser drivers available")
		return exitError
	}
	defaultDriver := browser.DriverPlaywright
	if _, ok := drivers[defaultDriver]; !ok {
		defaultDriver = browser.DriverRod
	}

	breakers := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig())

	recyclingPolicy := pool.DefaultRecyclingPolicy()
	if idle := parseDurationOr(cfg.Pool.IdleTimeout, 0); idle > 0 {
		recyclingPolicy.MaxIdleTime = idle
	}

	p, err := pool.New(pool.Config{
		MaxSize:            cfg.Pool.MaxSize,
		Drivers:            drivers,
		DefaultDriver:      defaultDriver,
		Breakers:           breakers,
		RecyclingPolicy:    recyclingPolicy,
		ErrorCap:           cfg.Pool.ErrorCap,
		MaxPagesPerBrowser: cfg.Pool.MaxPagesPerBrowser,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "pool: %v\n", err)
		return exitError
	}

	healthInterval := parseDurationOr(cfg.Pool.HealthCheckInterval, 30*time.Second)
	healthMonitor := pool.NewHealthMonitor(p, healthInterval, 4)
	recyclingEngine := pool.NewRecyclingEngine(p, recyclingPolicy, healthInterval, 2)
	resourceGovernor := pool.NewResourceGovernor(p, healthInterval, 2)

	pages := pagemanager.New(p, func(ev pagemanager.Event) {
		logger.Debug("page event", zap.Any("event", ev))
	})

	var store sessionstore.Store
	if cfg.Redis.Addr != "" && cfg.RateLimit.Backend == "redis" {
		store = sessionstore.NewRedisStore(newRedisClient(cfg.Redis))
	} else {
		store = sessionstore.NewMemoryStore()
	}
	sweeper := sessionstore.NewSweeper(store, time.Minute)

	var apiKeys corecontract.APIKeyLookup
	if cfg.Mongo.URI != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "mongo connect: %v\n", err)
			return exitError
		}
		apiKeys = mongostore.New(client.Database(cfg.Mongo.Database))
	}

	jwtSecret := []byte(cfg.JWTSecret)
	accessTTL := parseDurationOr(cfg.AccessTokenTTL, 15*time.Minute)
	refreshTTL := parseDurationOr(cfg.RefreshTokenTTL, 7*24*time.Hour)
	issuer := auth.NewIssuer(jwtSecret, accessTTL, refreshTTL)

	sessionTTL := parseDurationOr(cfg.SessionTTL, time.Hour)
	svc := corecontract.NewService(p, executor.New(), pages, store, issuer, apiKeys, nil, sessionTTL)
	_ = svc // the Core surface is consumed by frontends outside this module's scope

	ratelimitBackend := ratelimit.Backend(ratelimit.NewMemoryBackend())
	if cfg.RateLimit.Backend == "redis" && cfg.Redis.Addr != "" {
		ratelimitBackend = ratelimit.NewRedisBackend(newRedisClient(cfg.Redis))
	}
	limiter := ratelimit.NewLimiter(ratelimitBackend, ratelimit.DefaultPresets())
	_ = limiter // wired for frontends that sit in front of corecontract.Service

	metrics := monitoringMetrics()
	collector := metrics.collector
	health := monitoringHealth(p)

	sink := metrics.sink
	httpSrv := httpobs.New(cfg.MonitoringListen, health, sink, cfg.Cors.AllowedOrigins)

	runCtx, cancelRun := context.WithCancel(context.Background())
	go healthMonitor.Run(runCtx)
	go recyclingEngine.Run(runCtx)
	go resourceGovernor.Run(runCtx)
	go sweeper.Run(runCtx)
	go collector.Run(runCtx)

	coordinator := shutdown.NewCoordinator(30 * time.Second)
	coordinator.Register("http", shutdown.HTTPHandler(httpSrv))
	coordinator.Register("sweeper", shutdown.SweeperHandler(cancelRun))
	coordinator.Register("pool", shutdown.PoolHandler(p))
	coordinator.ListenForSignals()

	go func() {
		if err := httpSrv.Listen(runCtx); err != nil {
			logger.Error("monitoring server stopped", zap.Error(err))
		}
	}()

	logger.Info("fleetd ready",
		zap.String("monitoring_listen", cfg.MonitoringListen),
		zap.Int("pool_max_size", cfg.Pool.MaxSize),
	)
	coordinator.Wait()
	logger.Info("fleetd stopped")
	return exitOK
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
