package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/xbacnet/xbacnet/internal/api"
	"github.com/xbacnet/xbacnet/internal/api/middleware"
	"github.com/xbacnet/xbacnet/internal/bacnet"
	"github.com/xbacnet/xbacnet/internal/config"
	"github.com/xbacnet/xbacnet/internal/health"
	"github.com/xbacnet/xbacnet/internal/logger"
	"github.com/xbacnet/xbacnet/internal/object"
	"github.com/xbacnet/xbacnet/internal/server"
	"github.com/xbacnet/xbacnet/internal/store"
	tasks "github.com/xbacnet/xbacnet/internal/sync"
)

var Version = "1.0.0"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "xbacnet: %v\n", err)
		return 1
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		LogDir: cfg.Logger.LogDir,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "xbacnet: %v\n", err)
		return 1
	}
	defer logger.Sync()
	log := logger.Get()

	log.Info("starting xbacnet server", zap.String("version", Version))

	// Device identity: missing or malformed file is fatal.
	dev, err := config.LoadDevice(cfg.DeviceINI)
	if err != nil {
		log.Error("failed to load device identity", zap.Error(err))
		return 1
	}

	storeCfg := store.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
	}

	// Bootstrap snapshot: the object set exists only in the database, so
	// an unreachable database at startup is an init failure. Once the
	// objects are live, outages become transient.
	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelBoot()

	apiGW := store.New(storeCfg, log.Named("store"))
	if err := apiGW.Ensure(bootCtx); err != nil {
		log.Error("failed to connect to database", zap.Error(err))
		return 1
	}
	defer apiGW.Close()

	snap, err := apiGW.LoadSnapshot(bootCtx)
	if err != nil {
		log.Error("failed to read object tables", zap.Error(err))
		return 1
	}

	registry, err := object.BuildRegistry(snap)
	if err != nil {
		log.Error("failed to construct objects", zap.Error(err))
		return 1
	}
	log.Info("objects loaded", zap.Int("count", registry.Len()))

	// BACnet application binding.
	bindAddr, err := dev.UDPAddr(cfg.BACnet.Port)
	if err != nil {
		log.Error("invalid device address", zap.Error(err))
		return 1
	}
	bcastAddr, err := dev.BroadcastAddr(cfg.BACnet.Port)
	if err != nil {
		log.Error("invalid device address", zap.Error(err))
		return 1
	}

	srv := server.New(bacnet.DeviceInfo{
		ObjectName:       dev.ObjectName,
		Instance:         dev.ObjectIdentifier,
		VendorIdentifier: dev.VendorIdentifier,
	}, registry, log.Named("bacnet"))

	app, err := bacnet.NewApplication(bacnet.DeviceInfo{
		ObjectName:       dev.ObjectName,
		Instance:         dev.ObjectIdentifier,
		VendorIdentifier: dev.VendorIdentifier,
	}, bindAddr, bcastAddr, srv, log.Named("bacnet"))
	if err != nil {
		// Socket bind failure is fatal.
		log.Error("failed to bind BACnet/IP socket", zap.Error(err))
		return 1
	}
	srv.SetApplication(app)
	log.Info("BACnet/IP bound",
		zap.String("address", app.LocalAddr().String()),
		zap.Uint32("device", dev.ObjectIdentifier),
		zap.String("name", dev.ObjectName))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appErr := make(chan error, 1)
	go func() {
		appErr <- app.Run(ctx)
	}()

	// Periodic tasks: each owns its own database connection.
	refreshInterval := time.Duration(cfg.Tasks.RefreshingInterval) * time.Second
	persistInterval := time.Duration(cfg.Tasks.PersistenceInterval) * time.Second
	budget := refreshInterval
	if persistInterval < budget {
		budget = persistInterval
	}
	budget = budget * 8 / 10

	refreshGW := store.New(storeCfg, log.Named("store"))
	defer refreshGW.Close()
	persistGW := store.New(storeCfg, log.Named("store"))
	defer persistGW.Close()

	scheduler := tasks.NewScheduler(budget)
	refresher := tasks.NewRefresher(refreshGW, registry, srv, logger.WithTask("refresh"))
	persister := tasks.NewPersister(persistGW, registry, logger.WithTask("persist"))
	if err := scheduler.Add(refresher, refreshInterval); err != nil {
		log.Error("failed to install refresh task", zap.Error(err))
		return 1
	}
	if err := scheduler.Add(persister, persistInterval); err != nil {
		log.Error("failed to install persist task", zap.Error(err))
		return 1
	}
	scheduler.Start()
	log.Info("periodic tasks installed",
		zap.Duration("refreshing_interval", refreshInterval),
		zap.Duration("persistence_interval", persistInterval))

	// Management REST API.
	checker := health.NewChecker()
	checker.Register("database", func(ctx context.Context) (health.Status, string) {
		if apiGW.Healthy(ctx) {
			return health.StatusHealthy, "connected"
		}
		return health.StatusDegraded, "database unreachable, serving last-known values"
	})
	checker.Register("bacnet", func(ctx context.Context) (health.Status, string) {
		if app.Running() {
			return health.StatusHealthy, "listening"
		}
		return health.StatusUnhealthy, "protocol loop stopped"
	})

	jwtCfg := middleware.JWTConfig{SecretKey: cfg.API.JWTSecret}
	handler := api.NewHandler(apiGW, srv, checker, jwtCfg, log.Named("api"))

	fiberApp := fiber.New(fiber.Config{
		AppName:               "xbacnet v" + Version,
		DisableStartupMessage: true,
	})
	fiberApp.Use(recover.New())
	fiberApp.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	handler.SetupRoutes(fiberApp)

	apiAddr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	go func() {
		log.Info("management API listening", zap.String("address", apiAddr))
		if err := fiberApp.Listen(apiAddr); err != nil {
			log.Error("management API stopped", zap.Error(err))
		}
	}()

	// Run until interrupted.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case s := <-sig:
		log.Info("shutting down", zap.String("signal", s.String()))
	case err := <-appErr:
		if err != nil {
			log.Error("protocol loop failed", zap.Error(err))
			exitCode = 1
		}
	}

	cancel()
	scheduler.Stop()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := fiberApp.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warn("management API shutdown", zap.Error(err))
	}

	log.Info("stopped")
	return exitCode
}
