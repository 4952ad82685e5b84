package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(server.Shutdown)

	return server
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "repolens.index.run-1", RunSubject("run-1"))
	assert.Equal(t, "repolens.index.run-1.progress", Subject("run-1", KindProgress))
}

func TestNATSPublisher_Lifecycle(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	msgs := make(chan *nats.Msg, 10)
	sub, err := nc.ChanSubscribe(RunSubject("run-7")+".*", msgs)
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	pub := NewNATSPublisher(nc, nil)
	ctx := context.Background()

	require.NoError(t, pub.Progress(ctx, ProgressEvent{RunID: "run-7", Repository: "octo/cat", Progress: 0.5}))
	require.NoError(t, pub.Completed(ctx, CompletedEvent{RunID: "run-7", Repository: "octo/cat", Branch: "main", FilesIndexed: 3}))
	require.NoError(t, pub.Failed(ctx, FailedEvent{RunID: "run-7", Error: "boom"}))
	require.NoError(t, nc.Flush())

	var got []*nats.Msg
	timeout := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case m := <-msgs:
			got = append(got, m)
		case <-timeout:
			t.Fatalf("received %d of 3 events", len(got))
		}
	}

	assert.Equal(t, "repolens.index.run-7.progress", got[0].Subject)
	var progress ProgressEvent
	require.NoError(t, json.Unmarshal(got[0].Data, &progress))
	assert.Equal(t, 0.5, progress.Progress)
	assert.False(t, progress.Timestamp.IsZero())

	assert.Equal(t, "repolens.index.run-7.completed", got[1].Subject)
	var completed CompletedEvent
	require.NoError(t, json.Unmarshal(got[1].Data, &completed))
	assert.Equal(t, "main", completed.Branch)
	assert.Equal(t, 3, completed.FilesIndexed)

	assert.Equal(t, "repolens.index.run-7.failed", got[2].Subject)
	var failed FailedEvent
	require.NoError(t, json.Unmarshal(got[2].Data, &failed))
	assert.Equal(t, "boom", failed.Error)
}

func TestNATSPublisher_RequiresRunID(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	err = NewNATSPublisher(nc, nil).Progress(context.Background(), ProgressEvent{Progress: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run id is required")
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	ctx := context.Background()
	assert.NoError(t, p.Progress(ctx, ProgressEvent{}))
	assert.NoError(t, p.Completed(ctx, CompletedEvent{}))
	assert.NoError(t, p.Failed(ctx, FailedEvent{}))
}
