//go:build integration

package amqp

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ambitiousfew/stationlink/transport"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func runRabbitMQ(t *testing.T) (string, func()) {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "rabbitmq:3.13-alpine",
		ExposedPorts: []string{"5672/tcp"},
		WaitingFor:   wait.ForListeningPort("5672/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("rabbitmq container unavailable: %v", err)
	}
	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(ctx)
		t.Fatalf("container host: %v", err)
	}
	port, err := c.MappedPort(ctx, "5672")
	if err != nil {
		_ = c.Terminate(ctx)
		t.Fatalf("mapped port: %v", err)
	}
	url := fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port.Port())
	return url, func() { _ = c.Terminate(ctx) }
}

func TestRabbitMQIntegration(t *testing.T) {
	url, cleanup := runRabbitMQ(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	game := New(url, WithConsumerTag("game-3"))
	backend := New(url, WithConsumerTag("backend"))

	got := make(chan string, 2)
	game.SetHandler(transport.HandlerFunc(func(topic string, payload []byte) {
		got <- topic + " " + string(payload)
	}))

	for _, tr := range []*Transport{game, backend} {
		if err := tr.Connect(ctx); err != nil {
			t.Fatalf("connect: %v", err)
		}
		defer tr.Disconnect(ctx)
	}

	if err := game.Subscribe(ctx, "leaderboard/check_username/response/3"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := backend.Publish(ctx, "leaderboard/check_username/response/4", []byte(`other station`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := backend.Publish(ctx, "leaderboard/check_username/response/3", []byte(`{"key":"alice"}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-got:
		if msg != `leaderboard/check_username/response/3 {"key":"alice"}` {
			t.Fatalf("unexpected message %q", msg)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for the response")
	}

	if err := game.Unsubscribe(ctx, "leaderboard/check_username/response/3"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	_ = backend.Publish(ctx, "leaderboard/check_username/response/3", []byte(`late`))
	select {
	case msg := <-got:
		t.Fatalf("expected no message after unsubscribe, got %q", msg)
	case <-time.After(200 * time.Millisecond):
	}
}
