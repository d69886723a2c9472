package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rocketscienceinc/tictactoe-relay/internal/config"
	"github.com/rocketscienceinc/tictactoe-relay/internal/pkg"
	"github.com/rocketscienceinc/tictactoe-relay/internal/relay"
	"github.com/rocketscienceinc/tictactoe-relay/internal/repository"
	"github.com/rocketscienceinc/tictactoe-relay/internal/repository/storage"
	"github.com/rocketscienceinc/tictactoe-relay/transport/rest"
	"github.com/rocketscienceinc/tictactoe-relay/transport/websocket"
)

const shutdownTimeout = 5 * time.Second

var ErrAddrNotFound = errors.New("redis address string is empty")

// RunApp - runs the relay until SIGINT or SIGTERM.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return Run(ctx, logger, conf)
}

// Run - runs the relay until ctx is done.
func Run(ctx context.Context, logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	if err := conf.Validate(); err != nil {
		return err
	}

	outcomeRepo, closeStore, err := newOutcomeRepository(ctx, conf)
	if err != nil {
		return err
	}

	defer func() {
		if err = closeStore(); err != nil {
			log.Error("could not close redis storage", "error", err)
		}
	}()

	state := relay.NewState()
	matchmaker := relay.New(logger, state, outcomeRepo, pkg.GenerateID)

	wsServer := websocket.New(logger, matchmaker, websocket.Options{
		SendBuffer:   conf.Relay.SendBuffer,
		PingInterval: conf.Relay.PingInterval,
		WriteTimeout: conf.Relay.WriteTimeout,
	}, pkg.GenerateID)

	httpServer := rest.NewServer(conf.HTTPPort, rest.NewHandlers(logger, outcomeRepo, state), wsServer)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		if httpErr := httpServer.ListenAndServe(); httpErr != nil && !errors.Is(httpErr, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", httpErr)
		}

		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("Application context canceled, shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		wsServer.Close()

		return httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func newOutcomeRepository(ctx context.Context, conf *config.Config) (repository.OutcomeRepository, func() error, error) {
	if !conf.Redis.Enabled {
		return repository.NewMemoryOutcomeRepository(), func() error { return nil }, nil
	}

	redisAddrString := conf.Redis.GetRedisAddr()
	if conf.Redis.Host == "" {
		return nil, nil, ErrAddrNotFound
	}

	redisStorage, err := storage.New(ctx, redisAddrString)
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to redis storage: %w", err)
	}

	return repository.NewRedisOutcomeRepository(redisStorage, conf.Redis.OutcomeTTL), redisStorage.Close, nil
}
