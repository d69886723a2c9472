package suite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"
)

const (
	containerTTLSeconds = 120
	startupDeadline     = 2 * time.Minute

	redisRepository = "redis"
	redisVersion    = "alpine"
	redisExposed    = "6379/tcp"
)

// Suite carries a redis client bound to a disposable container.
type Suite struct {
	*testing.T

	Storage *redis.Client
}

// New - starts redis in docker for the duration of t. Skips t when there is no docker daemon.
func New(t *testing.T) (context.Context, *Suite) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), startupDeadline)
	t.Cleanup(cancel)

	pool := dockerPool(t)

	container, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: redisRepository,
		Tag:        redisVersion,
	}, func(host *docker.HostConfig) {
		host.AutoRemove = true
		host.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("could not start redis container: %v", err)
	}

	// hard stop even if Cleanup never runs
	_ = container.Expire(containerTTLSeconds)

	t.Cleanup(func() {
		if purgeErr := pool.Purge(container); purgeErr != nil {
			t.Errorf("could not remove redis container: %v", purgeErr)
		}
	})

	client, err := connect(ctx, pool, container.GetHostPort(redisExposed))
	if err != nil {
		t.Fatalf("redis container never became ready: %v", err)
	}

	t.Cleanup(func() { _ = client.Close() })

	return ctx, &Suite{T: t, Storage: client}
}

func dockerPool(t *testing.T) *dockertest.Pool {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker is not configured: %v", err)
	}

	if err = pool.Client.Ping(); err != nil {
		t.Skipf("docker is not reachable: %v", err)
	}

	pool.MaxWait = startupDeadline

	return pool
}

func connect(ctx context.Context, pool *dockertest.Pool, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	// the container accepts TCP before redis is serving
	if err := pool.Retry(func() error {
		return client.Ping(ctx).Err()
	}); err != nil {
		_ = client.Close()
		return nil, err
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("flush: %w", err)
	}

	return client, nil
}
