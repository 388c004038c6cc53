//go:build integration
// +build integration

package eventbroker

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bitechdev/StrapiSpec/pkg/config"
)

// startContainer runs image and returns the host and mapped port of its
// only exposed port
func startContainer(t *testing.T, image, exposed, readyLog string) (string, int) {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{exposed},
			WaitingFor:   wait.ForLog(readyLog).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(endpoint)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

// collect subscribes p and forwards every event to the returned channel
func collect(t *testing.T, p Provider) <-chan *Event {
	t.Helper()
	ch := make(chan *Event, 16)
	require.NoError(t, p.Subscribe(context.Background(), func(e *Event) { ch <- e }))
	return ch
}

func receive(t *testing.T, ch <-chan *Event) *Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
		return nil
	}
}

// exerciseFanOut publishes through one instance and expects both to receive
// the events in order
func exerciseFanOut(t *testing.T, a, b Provider) {
	t.Helper()
	ctx := context.Background()
	fromA := collect(t, a)
	fromB := collect(t, b)

	changed := NewEvent(EventSessionChanged, "s1")
	changed.Query = "fields=title"
	changed.URL = "http://strapi.local/api/articles?fields=title"
	require.NoError(t, a.Publish(ctx, changed))
	require.NoError(t, a.Publish(ctx, NewEvent(EventSessionDeleted, "s1")))

	for _, ch := range []<-chan *Event{fromA, fromB} {
		got := receive(t, ch)
		assert.Equal(t, EventSessionChanged, got.Type)
		assert.Equal(t, "fields=title", got.Query)
		assert.Equal(t, changed.URL, got.URL)
		assert.Equal(t, EventSessionDeleted, receive(t, ch).Type)
	}

	require.NoError(t, a.Close())
	assert.ErrorIs(t, a.Publish(ctx, NewEvent(EventSessionChanged, "s1")), ErrClosed)
	require.NoError(t, b.Close())
}

func TestRedisProviderIntegration(t *testing.T) {
	host, port := startContainer(t, "redis:7-alpine", "6379/tcp", "Ready to accept connections")

	cfg := config.EventsConfig{
		Provider: ProviderRedis,
		Channel:  "strapispec.test",
		Redis:    config.RedisConfig{Host: host, Port: port},
	}
	a, err := NewProviderFromConfig(cfg, "a")
	require.NoError(t, err)
	b, err := NewProviderFromConfig(cfg, "b")
	require.NoError(t, err)

	exerciseFanOut(t, a, b)
}

func TestRedisProviderIgnoresMalformedMessages(t *testing.T) {
	host, port := startContainer(t, "redis:7-alpine", "6379/tcp", "Ready to accept connections")
	ctx := context.Background()

	rp, err := NewRedisProvider(RedisConfig{Host: host, Port: port})
	require.NoError(t, err)
	defer rp.Close()

	events := collect(t, rp)
	require.NoError(t, rp.client.Publish(ctx, DefaultChannel, "garbage").Err())
	require.NoError(t, rp.Publish(ctx, NewEvent(EventSessionChanged, "s2")))

	assert.Equal(t, "s2", receive(t, events).SessionID)
	assert.Equal(t, int64(1), rp.Stats().Dropped)
}

func TestNATSProviderIntegration(t *testing.T) {
	host, port := startContainer(t, "nats:2.10-alpine", "4222/tcp", "Server is ready")

	cfg := config.EventsConfig{
		Provider: ProviderNATS,
		Channel:  "strapispec.test",
	}
	cfg.NATS.URL = fmt.Sprintf("nats://%s:%d", host, port)

	a, err := NewProviderFromConfig(cfg, "a")
	require.NoError(t, err)
	b, err := NewProviderFromConfig(cfg, "b")
	require.NoError(t, err)

	exerciseFanOut(t, a, b)
}
