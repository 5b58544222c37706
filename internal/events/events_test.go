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
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/codemage/internal/logging"
)

func TestNew(t *testing.T) {
	e := New("gen-1", TypeStage, 2, 6, "astrbot_plugin_x", "generating docs")
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "gen-1", e.GenerationID)
	assert.False(t, e.Time.IsZero())
	assert.False(t, e.Type.Terminal())
	assert.True(t, TypeCompleted.Terminal())
	assert.True(t, TypePending.Terminal())
}

func TestMulti(t *testing.T) {
	var got []Type
	record := SinkFunc(func(_ context.Context, e Event) { got = append(got, e.Type) })

	s := Multi(record, nil, Nop, record)
	s.Emit(context.Background(), Event{Type: TypeWarning})

	assert.Equal(t, []Type{TypeWarning, TypeWarning}, got)
}

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster(4)
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	assert.Equal(t, 2, b.Subscribers())

	b.Emit(context.Background(), Event{Type: TypeStage, Message: "hi"})

	for _, s := range []*Subscription{s1, s2} {
		select {
		case e := <-s.C():
			assert.Equal(t, "hi", e.Message)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}

	s1.Close()
	s1.Close()
	assert.Equal(t, 1, b.Subscribers())
	_, open := <-s1.C()
	assert.False(t, open)
}

func TestBroadcaster_SlowSubscriberDropped(t *testing.T) {
	b := NewBroadcaster(1)
	s := b.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			b.Emit(context.Background(), Event{Step: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full subscriber")
	}
	assert.Equal(t, 4, s.Dropped())
	assert.Equal(t, 0, (<-s.C()).Step)
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster(1)
	s := b.Subscribe()
	b.Close()

	_, open := <-s.C()
	assert.False(t, open)
	s.Close()

	late := b.Subscribe()
	_, open = <-late.C()
	assert.False(t, open)
	b.Emit(context.Background(), Event{})
}

func TestLogSink(t *testing.T) {
	tl := logging.NewTestLogger()
	sink := NewLogSink(tl.Logger)

	sink.Emit(context.Background(), New("gen-1", TypeStage, 1, 6, "", "generating metadata"))
	sink.Emit(context.Background(), New("gen-1", TypeFailed, 4, 6, "astrbot_plugin_x", "review exhausted"))

	tl.AssertLogged(t, zapcore.InfoLevel, "generating metadata")
	tl.AssertLogged(t, zapcore.WarnLevel, "review exhausted")
	tl.AssertField(t, "review exhausted", "plugin", "astrbot_plugin_x")
}

func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)

	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		srv.Shutdown()
		srv.WaitForShutdown()
	})
	return srv
}

func TestNATSSink(t *testing.T) {
	srv := startTestNATSServer(t)

	sub, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer sub.Close()

	msgs := make(chan *nats.Msg, 4)
	s, err := sub.ChanSubscribe("codemage.events.gen-1.*", msgs)
	require.NoError(t, err)
	defer s.Unsubscribe()
	require.NoError(t, sub.Flush())

	sink, err := Connect(srv.ClientURL(), "codemage.events", nil)
	require.NoError(t, err)

	ev := New("gen-1", TypeCompleted, 6, 6, "astrbot_plugin_x", "done")
	sink.Emit(context.Background(), ev)
	require.NoError(t, sink.Close())

	select {
	case msg := <-msgs:
		assert.Equal(t, "codemage.events.gen-1.completed", msg.Subject)
		var got Event
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, ev.ID, got.ID)
		assert.Equal(t, "done", got.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("event not published")
	}
}
