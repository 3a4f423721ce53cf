// Package testutil starts the backing services for integration tests in
// throwaway containers. Tests are skipped when no Docker provider is
// available.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/robertarktes/event-ticketing/internal/adapters/crdb"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func start(t *testing.T, req testcontainers.ContainerRequest, port string) string {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	mapped, err := c.MappedPort(ctx, nat.Port(port))
	if err != nil {
		t.Fatal(err)
	}
	return host + ":" + mapped.Port()
}

// NewCockroachPool starts a single-node CockroachDB, applies the migrations
// and returns a pool on it.
func NewCockroachPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	addr := start(t, testcontainers.ContainerRequest{
		Image:        "cockroachdb/cockroach:v24.1.1",
		Cmd:          []string{"start-single-node", "--insecure"},
		ExposedPorts: []string{"26257/tcp", "8080/tcp"},
		WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
	}, "26257")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, fmt.Sprintf("postgresql://root@%s/defaultdb?sslmode=disable", addr))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	if err := crdb.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

// TruncateAll empties every domain table, keeping schema_migrations.
func TruncateAll(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	if _, err := pool.Exec(context.Background(), `TRUNCATE bookings, events, outbox CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func NewRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := start(t, testcontainers.ContainerRequest{
		Image:        "redis:7",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}, "6379")

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func NewRabbitConn(t *testing.T) *amqp.Connection {
	t.Helper()
	addr := start(t, testcontainers.ContainerRequest{
		Image:        "rabbitmq:3.13-management",
		ExposedPorts: []string{"5672/tcp", "15672/tcp"},
		WaitingFor:   wait.ForHTTP("/api/health/checks/alarms").WithPort("15672").WithBasicAuth("guest", "guest"),
	}, "5672")

	conn, err := amqp.Dial("amqp://guest:guest@" + addr + "/")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func NewMongoDatabase(t *testing.T, name string) *mongo.Database {
	t.Helper()
	addr := start(t, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForLog("Waiting for connections"),
	}, "27017")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI("mongodb://"+addr))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return client.Database(name)
}
