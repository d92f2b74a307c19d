package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"

	"confreg/cmd/buildCFG"
	"confreg/internal/api/api"
	rabbitReader "confreg/internal/consumerWorker"
	"confreg/internal/csrf"
	"confreg/internal/mailer"
	"confreg/internal/proof"
	"confreg/internal/rabbit"
	"confreg/internal/repo"
	"confreg/internal/service"
	"confreg/internal/session"
	"confreg/internal/workflow"
)

func main() {
	zlog.Init()
	log := zlog.Logger

	cfg := config.New()
	if err := cfg.Load("config.yaml", "", "'"); err != nil {
		log.Fatal().Msgf("failed to load configuration: %v", err)
	}
	serverCfg := buildCFG.BuildServerConfig(cfg, &log)

	masterDSN, slaveDSNs, poolOptions, err := buildCFG.BuildDBConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build DB config")
	}
	db, err := dbpg.New(masterDSN, slaveDSNs, poolOptions)
	if err != nil {
		log.Fatal().Msgf("failed to connect to DB: %v", err)
	}
	log.Info().Msg("Database connected successfully")

	repository, err := repo.NewRepository(db, &log)
	if err != nil {
		log.Fatal().Msgf("failed to initialize repository: %v", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal().Err(err).Msg("cannot get working directory")
	}
	migrationPath := filepath.Join(cwd, "migrations/postgres")

	if len(os.Args) > 1 && os.Args[1] == "migrate-down" {
		if err := repository.MigrateDown(migrationPath); err != nil {
			log.Fatal().Msgf("failed to rollback migrations: %v", err)
		}
		log.Info().Msg("Migrations rolled back successfully")
		return
	}
	if err := repository.MigrateUp(migrationPath); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	redisCfg, err := buildCFG.BuildRedisConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load Redis config")
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisCfg.Addr, Password: redisCfg.Password, DB: redisCfg.DB})
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal().Msgf("Redis ping failed: %v", err)
	}
	sessionCfg := buildCFG.BuildSessionConfig(cfg)
	sessions := session.NewRedisStore(rdb, sessionCfg.TTL)

	uploadCfg := buildCFG.BuildUploadConfig(cfg)
	proofs, err := proof.NewStore(uploadCfg.Dir, uploadCfg.MaxBytes)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare upload directory")
	}

	csrfCfg, err := buildCFG.BuildCSRFConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load CSRF config")
	}
	tokens, err := csrf.New(csrfCfg.Secret, csrfCfg.TTL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid CSRF config")
	}

	rabbitCfg, err := buildCFG.BuildRabbitConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load RabbitMQ config")
	}
	rmq, err := rabbit.NewRabbit(rabbitCfg.Url, rabbitCfg.Exchange, rabbitCfg.Queue)
	if err != nil {
		log.Fatal().Msgf("Failed to connect to RabbitMQ: %v", err)
	}
	defer rmq.Close()

	mail := mailer.New(buildCFG.BuildMailConfig(cfg), &log)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	rabbitReaderer := rabbitReader.NewReader(rmq, repository, mail)
	rabbitReaderer.Start(workerCtx)

	wf := workflow.New(repository, proofs, rmq, &log)
	serviceInstance := service.NewService(repository, wf, proofs, tokens, &log)
	app := api.NewRouters(&api.Routers{
		Service:      serviceInstance,
		Sessions:     sessions,
		Tokens:       tokens,
		CookieName:   sessionCfg.Cookie,
		AllowOrigins: serverCfg.AllowOrigins,
	})

	srv := &http.Server{
		Addr:    ":" + serverCfg.Port,
		Handler: app,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting server on %s", serverCfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signalChan:
		log.Info().Msgf("Received signal %s. Initiating shutdown...", sig)
	case err := <-serverErrChan:
		log.Error().Msgf("Server error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Msgf("Error shutting down server: %v", err)
	}

	cancelWorkers()
	rabbitReaderer.Stop()

	log.Info().Msg("Shutdown complete")
}
