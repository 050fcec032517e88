package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"github.com/rs/zerolog"

	"agent-runner-server/handlers"
	"agent-runner-server/middleware"
	"agent-runner-server/services"

	_ "agent-runner-server/docs"
)

// @title Agent Runner API
// @version 1.0
// @description Dispatches text-processing requests to one-shot script workers
// @host localhost:8080
// @BasePath /api
func main() {
	cfg, err := loadConfig()
	log := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.XRayEnabled {
		if err := xray.Configure(xray.Config{DaemonAddr: cfg.XRayDaemonAddr, ServiceVersion: "1.0"}); err != nil {
			log.Fatal().Err(err).Msg("failed to configure X-Ray")
		}
	}

	script := services.NewScriptRef(services.ScriptLayout{
		BaseDir:       cfg.BaseDir,
		ScriptFile:    cfg.ScriptFile,
		DependencyDir: cfg.DependencyDir,
		ProjectRoot:   cfg.ProjectRoot,
	})

	// Fetch the processing script from storage before any worker loads it
	var store services.ScriptStore
	if cfg.StorageType != "" {
		store, err = services.NewScriptStore(cfg.StorageType, cfg.StoragePath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize script store")
		}
		if err := services.MirrorScript(ctx, store, cfg.ScriptKey, script.File); err != nil {
			log.Fatal().Err(err).Msg("failed to mirror processing script")
		}
		log.Info().Str("storage", cfg.StorageType).Str("key", cfg.ScriptKey).Str("dest", script.File).Msg("script mirrored")
	}

	interp := services.NewInterpreter(services.InterpreterConfig{Home: cfg.RuntimeHome, Logger: log})
	if err := interp.InitializeOnce(); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize interpreter")
	}

	var sinks []services.OutcomeSink
	var redisService *services.RedisService
	if cfg.RedisEnabled {
		redisService = services.NewRedisService(cfg.RedisHost, cfg.RedisPort, cfg.OutcomeChannel)
		if err := redisService.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		sinks = append(sinks, redisService)
		log.Info().Str("host", cfg.RedisHost).Int("port", cfg.RedisPort).Msg("connected to Redis")
	}

	dispatcher := services.NewDispatcher(interp, services.DispatcherConfig{
		Script:  script,
		Sinks:   sinks,
		Tracing: cfg.XRayEnabled,
		Logger:  log,
	})

	var sources sync.WaitGroup
	runSource := func(name string, src services.RequestSource) {
		sources.Add(1)
		go func() {
			defer sources.Done()
			if err := src.Run(ctx, dispatcher); err != nil {
				log.Error().Err(err).Str("source", name).Msg("request source stopped")
			}
		}()
	}
	runSource("simulated", services.NewSimulatedSource(cfg.RequestCount, cfg.RequestStagger, nil, log))
	if redisService != nil {
		runSource("redis", services.NewQueueSource(redisService, cfg.RequestQueue, log))
	}

	var app *fiber.App
	if cfg.HTTPEnabled {
		app = newApp(cfg, appDeps{
			dispatcher: dispatcher,
			interp:     interp,
			store:      store,
			scriptFile: script.File,
			redis:      redisService,
		}, log)
		go func() {
			log.Info().Str("port", cfg.ServerPort).Msg("HTTP intake listening")
			if err := app.Listen(":" + cfg.ServerPort); err != nil {
				log.Error().Err(err).Msg("HTTP intake stopped")
			}
		}()
	}

	log.Info().Msg("running, press Ctrl+C to exit")
	<-ctx.Done()
	log.Info().Msg("shutting down")

	// Stop intake first, then let running workers finish, then tear down the interpreter
	if app != nil {
		if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Warn().Err(err).Msg("HTTP shutdown")
		}
	}
	sources.Wait()
	dispatcher.Stop()

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.DrainTimeout)
	if err := dispatcher.Drain(drainCtx); err != nil {
		log.Warn().Err(err).Msg("workers still running at shutdown")
	}
	cancel()

	if redisService != nil {
		if err := redisService.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close Redis client")
		}
	}
	if err := interp.ShutdownOnce(); err != nil {
		log.Warn().Err(err).Msg("interpreter shutdown")
	}
	log.Info().Interface("stats", dispatcher.Stats()).Msg("stopped")
}

type appDeps struct {
	dispatcher *services.Dispatcher
	interp     *services.Interpreter
	store      services.ScriptStore
	scriptFile string
	redis      *services.RedisService
}

func newApp(cfg appConfig, deps appDeps, log zerolog.Logger) *fiber.App {
	requestHandler := handlers.NewRequestHandler(deps.dispatcher, deps.interp)
	if deps.redis != nil {
		requestHandler.WithQueue(deps.redis, cfg.RequestQueue)
	}

	app := fiber.New(fiber.Config{
		AppName:               "AgentRunner",
		DisableStartupMessage: true,
	})

	app.Use(logger.New())
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))
	if cfg.XRayEnabled {
		app.Use(middleware.XRayMiddleware("agent-runner", log))
	}

	app.Get("/swagger/*", swagger.HandlerDefault)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "UP"})
	})

	api := app.Group("/api")
	api.Post("/requests", requestHandler.SubmitRequest)
	api.Get("/stats", requestHandler.GetStats)

	if deps.store != nil {
		scriptHandler := handlers.NewScriptHandler(deps.store, cfg.ScriptKey, deps.scriptFile)
		api.Get("/script", scriptHandler.GetScript)
		api.Put("/script", scriptHandler.UpdateScript)
	}

	return app
}

func newLogger(level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zl := zerolog.New(os.Stderr)
	if format == "console" {
		zl = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return zl.Level(lvl).With().Timestamp().Logger()
}
