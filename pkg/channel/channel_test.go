package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	cherrors "github.com/channelkit/channel-sdk-go/pkg/errors"
	"github.com/channelkit/channel-sdk-go/pkg/transport"
	"github.com/channelkit/channel-sdk-go/pkg/utils"
)

func testConfig(connector transport.Connector) *Config {
	cfg := DefaultConfig()
	cfg.Connector = connector
	cfg.Backoff = BackoffConfig{
		Initial: 5 * time.Millisecond,
		Min:     time.Millisecond,
		Max:     20 * time.Millisecond,
		Growth:  2,
	}
	cfg.ConnectTimeout = 2 * time.Second
	cfg.CloseTimeout = 2 * time.Second
	return cfg
}

// pushJSON injects a text frame carrying the JSON encoding of payload
func pushJSON(t *testing.T, conn *transport.ScriptedConnection, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	conn.PushText(string(data))
}

func TestChannelStartRecvClose(t *testing.T) {
	leak := utils.NewGoroutineLeakDetector(t)
	leak.Start()

	connector := transport.NewScriptedConnector()
	ch := New(testConfig(connector))
	ctx := context.Background()

	require.NoError(t, ch.Start(ctx, "wss://stream.example.com/v1"))
	assert.Equal(t, StateOpen, ch.State())
	assert.Equal(t, "wss://stream.example.com/v1", ch.Endpoint())
	assert.NotEmpty(t, ch.ID())

	conn := connector.Conn(0)
	require.NotNil(t, conn)
	for i := 0; i < 3; i++ {
		pushJSON(t, conn, fmt.Sprintf("msg-%d", i))
	}

	for i := 0; i < 3; i++ {
		msg, err := ch.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("msg-%d", i), msg.Payload)
		assert.Equal(t, uint64(1), msg.Epoch)
		assert.Equal(t, "wss://stream.example.com/v1", msg.Endpoint)
	}

	require.NoError(t, ch.Close(ctx))
	assert.Equal(t, StateClosed, ch.State())
	assert.True(t, conn.WaitClosed(time.Second))

	_, err := ch.Recv(ctx)
	assert.True(t, cherrors.IsChannelClosed(err))

	leak.Check()
}

func TestChannelRecvFIFOUnderLoad(t *testing.T) {
	connector := transport.NewScriptedConnector()
	ch := New(testConfig(connector))
	ctx := context.Background()

	require.NoError(t, ch.Start(ctx, "wss://stream.example.com/v1"))
	conn := connector.Conn(0)
	require.NotNil(t, conn)

	const total = 200

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for i := 0; i < total; i++ {
			data, err := json.Marshal(fmt.Sprintf("msg-%d", i))
			if err != nil {
				return err
			}
			conn.PushText(string(data))
		}
		return nil
	})
	g.Go(func() error {
		for i := 0; i < total; i++ {
			msg, err := ch.Recv(gctx)
			if err != nil {
				return err
			}
			if want := fmt.Sprintf("msg-%d", i); msg.Payload != want {
				return fmt.Errorf("out of order: got %v, want %s", msg.Payload, want)
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())

	require.NoError(t, ch.Close(ctx))
}

func TestChannelConcurrentRecvFailsFast(t *testing.T) {
	connector := transport.NewScriptedConnector()
	ch := New(testConfig(connector))
	ctx := context.Background()

	require.NoError(t, ch.Start(ctx, "wss://stream.example.com/v1"))

	blocked := make(chan error, 1)
	go func() {
		_, err := ch.Recv(ctx)
		blocked <- err
	}()
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	_, err := ch.Recv(ctx)
	require.Error(t, err)
	assert.True(t, cherrors.IsConcurrentAccess(err))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	pushJSON(t, connector.Conn(0), "release")
	select {
	case err := <-blocked:
		assert.NoError(t, err, "the first consumer must be unaffected by the rejected one")
	case <-time.After(time.Second):
		t.Fatal("first consumer never received the message")
	}

	require.NoError(t, ch.Close(ctx))
}

func TestChannelStartRetriesUntilSuccess(t *testing.T) {
	connector := transport.NewScriptedConnector()
	connector.FailNext(
		errors.New("connection refused"),
		errors.New("connection refused"),
	)

	ch := New(testConfig(connector))
	ctx := context.Background()

	require.NoError(t, ch.Start(ctx, "wss://stream.example.com/v1"))
	assert.Equal(t, StateOpen, ch.State())
	assert.Equal(t, 3, connector.OpenCount())

	require.NoError(t, ch.Close(ctx))
}

func TestChannelStartExhaustsRetryBudget(t *testing.T) {
	connector := transport.NewScriptedConnector()
	connector.FailNext(
		errors.New("connection refused"),
		errors.New("connection refused"),
		errors.New("connection refused"),
	)

	cfg := testConfig(connector)
	cfg.MaxReconnectAttempts = 3
	ch := New(cfg)
	ctx := context.Background()

	err := ch.Start(ctx, "wss://stream.example.com/v1")
	require.Error(t, err)
	assert.True(t, cherrors.IsReconnectExhausted(err))
	assert.Equal(t, StateClosed, ch.State())
	assert.Equal(t, 3, connector.OpenCount())
}

func TestChannelStartNoReconnect(t *testing.T) {
	connector := transport.NewScriptedConnector()
	connector.FailNext(errors.New("connection refused"))

	cfg := testConfig(connector)
	cfg.Reconnect = false
	ch := New(cfg)

	err := ch.Start(context.Background(), "wss://stream.example.com/v1")
	require.Error(t, err)
	assert.Equal(t, 1, connector.OpenCount())
	assert.Equal(t, StateClosed, ch.State())
}

func TestChannelReconnectsAfterConnectionLost(t *testing.T) {
	connector := transport.NewScriptedConnector()
	ch := New(testConfig(connector))
	ctx := context.Background()

	require.NoError(t, ch.Start(ctx, "wss://stream.example.com/v1"))

	connector.Conn(0).Fail(errors.New("unexpected EOF"))

	// The loop opens a fresh connection; messages resume on the next epoch.
	require.Eventually(t, func() bool {
		return connector.OpenCount() >= 2
	}, 2*time.Second, 10*time.Millisecond)

	conn := connector.Conn(1)
	require.NotNil(t, conn)
	pushJSON(t, conn, "after-reconnect")

	msg, err := ch.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "after-reconnect", msg.Payload)
	assert.Equal(t, uint64(2), msg.Epoch)

	require.NoError(t, ch.Close(ctx))
}

func TestChannelTerminalErrorSurfacesOnce(t *testing.T) {
	connector := transport.NewScriptedConnector()
	cfg := testConfig(connector)
	cfg.Reconnect = false
	ch := New(cfg)
	ctx := context.Background()

	require.NoError(t, ch.Start(ctx, "wss://stream.example.com/v1"))
	connector.Conn(0).Fail(errors.New("unexpected EOF"))

	require.Eventually(t, func() bool {
		return ch.State() == StateClosed
	}, 2*time.Second, 10*time.Millisecond)

	_, err := ch.Recv(ctx)
	require.Error(t, err)
	assert.True(t, cherrors.IsCode(err, cherrors.CodeConnectionLost), "first Recv surfaces the terminal failure: %v", err)

	_, err = ch.Recv(ctx)
	require.Error(t, err)
	assert.True(t, cherrors.IsChannelClosed(err), "later Recvs report a closed channel: %v", err)
}

func TestChannelUpdatePreservesBuffer(t *testing.T) {
	connector := transport.NewScriptedConnector()
	ch := New(testConfig(connector))
	ctx := context.Background()

	require.NoError(t, ch.Start(ctx, "wss://a.example.com/v1"))
	oldConn := connector.Conn(0)

	pushJSON(t, oldConn, "buffered-before-update")
	require.Eventually(t, func() bool { return ch.BufferLen() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, ch.Update(ctx, "wss://b.example.com/v1", false))
	assert.Equal(t, StateOpen, ch.State())
	assert.Equal(t, "wss://b.example.com/v1", ch.Endpoint())
	assert.True(t, oldConn.WaitClosed(time.Second))

	msg, err := ch.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "buffered-before-update", msg.Payload)
	assert.Equal(t, uint64(1), msg.Epoch, "buffered messages keep their original epoch")

	pushJSON(t, connector.Conn(1), "from-new-endpoint")
	msg, err = ch.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "from-new-endpoint", msg.Payload)
	assert.Equal(t, "wss://b.example.com/v1", msg.Endpoint)
	assert.Equal(t, uint64(2), msg.Epoch)

	require.NoError(t, ch.Close(ctx))
}

func TestChannelUpdateFailureWithoutRollback(t *testing.T) {
	connector := transport.NewScriptedConnector()
	cfg := testConfig(connector)
	cfg.MaxReconnectAttempts = 1
	ch := New(cfg)
	ctx := context.Background()

	require.NoError(t, ch.Start(ctx, "wss://a.example.com/v1"))

	recvErr := make(chan error, 1)
	go func() {
		_, err := ch.Recv(ctx)
		recvErr <- err
	}()
	time.Sleep(50 * time.Millisecond)

	connector.FailNext(errors.New("dns failure"))
	err := ch.Update(ctx, "wss://b.example.com/v1", false)
	require.Error(t, err)
	assert.True(t, cherrors.IsCode(err, cherrors.CodeUpdateFailed))
	assert.Equal(t, StateClosed, ch.State())

	select {
	case err := <-recvErr:
		require.Error(t, err)
		assert.True(t, cherrors.IsCode(err, cherrors.CodeUpdateFailed),
			"the pending consumer observes the same failure: %v", err)
	case <-time.After(time.Second):
		t.Fatal("pending Recv was not released by the failed update")
	}
}

func TestChannelUpdateFailureWithRollback(t *testing.T) {
	connector := transport.NewScriptedConnector()
	cfg := testConfig(connector)
	cfg.MaxReconnectAttempts = 1
	ch := New(cfg)
	ctx := context.Background()

	require.NoError(t, ch.Start(ctx, "wss://a.example.com/v1"))

	recvMsg := make(chan string, 1)
	recvErr := make(chan error, 1)
	go func() {
		msg, err := ch.Recv(ctx)
		if err != nil {
			recvErr <- err
			return
		}
		recvMsg <- msg.Payload.(string)
	}()
	time.Sleep(50 * time.Millisecond)

	connector.FailNext(errors.New("dns failure"))
	err := ch.Update(ctx, "wss://b.example.com/v1", true)
	require.Error(t, err)
	assert.True(t, cherrors.IsUpdateRolledBack(err))

	assert.Equal(t, StateOpen, ch.State())
	assert.Equal(t, "wss://a.example.com/v1", ch.Endpoint())
	assert.Equal(t,
		[]string{"wss://a.example.com/v1", "wss://b.example.com/v1", "wss://a.example.com/v1"},
		connector.OpenedEndpoints())

	// The consumer blocked across the whole update still gets the next
	// message from the restored endpoint.
	pushJSON(t, connector.LastConn(), "after-rollback")
	select {
	case payload := <-recvMsg:
		assert.Equal(t, "after-rollback", payload)
	case err := <-recvErr:
		t.Fatalf("blocked Recv failed during rollback: %v", err)
	case <-time.After(time.Second):
		t.Fatal("blocked Recv never completed after rollback")
	}

	require.NoError(t, ch.Close(ctx))
}

func TestChannelUpdateOnClosedChannel(t *testing.T) {
	connector := transport.NewScriptedConnector()
	ch := New(testConfig(connector))
	ctx := context.Background()

	require.NoError(t, ch.Start(ctx, "wss://a.example.com/v1"))
	require.NoError(t, ch.Close(ctx))

	err := ch.Update(ctx, "wss://b.example.com/v1", true)
	assert.True(t, cherrors.IsChannelClosed(err))
}

func TestChannelCloseUnblocksRecv(t *testing.T) {
	connector := transport.NewScriptedConnector()
	ch := New(testConfig(connector))
	ctx := context.Background()

	require.NoError(t, ch.Start(ctx, "wss://stream.example.com/v1"))

	recvErr := make(chan error, 1)
	go func() {
		_, err := ch.Recv(ctx)
		recvErr <- err
	}()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, ch.Close(ctx))

	select {
	case err := <-recvErr:
		assert.True(t, cherrors.IsChannelClosed(err))
	case <-time.After(time.Second):
		t.Fatal("blocked Recv was not released by Close")
	}
}

func TestChannelCloseIdempotent(t *testing.T) {
	connector := transport.NewScriptedConnector()
	ch := New(testConfig(connector))
	ctx := context.Background()

	require.NoError(t, ch.Start(ctx, "wss://stream.example.com/v1"))
	require.NoError(t, ch.Close(ctx))
	require.NoError(t, ch.Close(ctx))

	err := ch.Start(ctx, "wss://stream.example.com/v1")
	assert.True(t, cherrors.IsChannelClosed(err), "a closed channel cannot be restarted")
}

func TestChannelStartIdempotentWhileOpen(t *testing.T) {
	connector := transport.NewScriptedConnector()
	ch := New(testConfig(connector))
	ctx := context.Background()

	require.NoError(t, ch.Start(ctx, "wss://stream.example.com/v1"))
	require.NoError(t, ch.Start(ctx, "wss://stream.example.com/v1"))
	assert.Equal(t, 1, connector.OpenCount())

	require.NoError(t, ch.Close(ctx))
}

func TestChannelRecvBeforeStart(t *testing.T) {
	ch := New(testConfig(transport.NewScriptedConnector()))

	_, err := ch.Recv(context.Background())
	assert.True(t, cherrors.IsChannelClosed(err))
}

func TestChannelDecodeFailureDeliveredAsMessage(t *testing.T) {
	connector := transport.NewScriptedConnector()
	ch := New(testConfig(connector))
	ctx := context.Background()

	require.NoError(t, ch.Start(ctx, "wss://stream.example.com/v1"))
	conn := connector.Conn(0)

	conn.PushText("{not json")
	pushJSON(t, conn, "still-flowing")

	msg, err := ch.Recv(ctx)
	require.NoError(t, err, "a malformed frame is data, not a channel failure")
	assert.True(t, msg.IsDecodeError())
	assert.True(t, cherrors.IsDecodeFailed(msg.DecodeErr))
	assert.Equal(t, []byte("{not json"), msg.Raw)
	assert.Nil(t, msg.Payload)

	msg, err = ch.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "still-flowing", msg.Payload)
	assert.Equal(t, StateOpen, ch.State())

	require.NoError(t, ch.Close(ctx))
}

func TestChannelConnectTimeout(t *testing.T) {
	connector := transport.NewScriptedConnector()
	connector.SetOpenDelay(500 * time.Millisecond)

	cfg := testConfig(connector)
	cfg.ConnectTimeout = 50 * time.Millisecond
	ch := New(cfg)

	err := ch.Start(context.Background(), "wss://stream.example.com/v1")
	require.Error(t, err)
	assert.True(t, cherrors.IsCode(err, cherrors.CodeConnectTimeout))
	assert.Equal(t, StateClosed, ch.State())
}

func TestIteratorGracefulClose(t *testing.T) {
	connector := transport.NewScriptedConnector()
	ch := New(testConfig(connector))
	ctx := context.Background()

	require.NoError(t, ch.Start(ctx, "wss://stream.example.com/v1"))
	conn := connector.Conn(0)
	pushJSON(t, conn, "one")
	pushJSON(t, conn, "two")

	go func() {
		time.Sleep(100 * time.Millisecond)
		ch.Close(context.Background()) //nolint:errcheck
	}()

	var payloads []string
	it := ch.Messages(ctx)
	for it.Next() {
		payloads = append(payloads, it.Message().Payload.(string))
	}

	require.NoError(t, it.Err(), "a deliberate Close ends iteration without error")
	assert.Equal(t, []string{"one", "two"}, payloads)
}

func TestIteratorTerminalError(t *testing.T) {
	connector := transport.NewScriptedConnector()
	cfg := testConfig(connector)
	cfg.Reconnect = false
	ch := New(cfg)
	ctx := context.Background()

	require.NoError(t, ch.Start(ctx, "wss://stream.example.com/v1"))
	connector.Conn(0).Fail(errors.New("unexpected EOF"))

	it := ch.Messages(ctx)
	for it.Next() {
	}

	require.Error(t, it.Err())
	assert.True(t, cherrors.IsCode(it.Err(), cherrors.CodeConnectionLost))
}

func TestNewAppliesOptions(t *testing.T) {
	connector := transport.NewScriptedConnector()
	backoff := BackoffConfig{Initial: time.Second, Min: time.Second, Max: 2 * time.Second, Growth: 2}

	ch := New(nil,
		WithConnector(connector),
		WithReconnect(false),
		WithMaxReconnectAttempts(7),
		WithConnectTimeout(3*time.Second),
		WithBackoff(backoff),
	)

	assert.Same(t, connector, ch.config.Connector)
	assert.False(t, ch.config.Reconnect)
	assert.Equal(t, 7, ch.config.MaxReconnectAttempts)
	assert.Equal(t, 3*time.Second, ch.config.ConnectTimeout)
	assert.Equal(t, backoff, ch.config.Backoff)
}

func TestNewDoesNotMutateCallerConfig(t *testing.T) {
	caller := &Config{}
	New(caller, WithReconnect(true))
	assert.False(t, caller.Reconnect)
	assert.Nil(t, caller.Connector, "defaults must be filled on a copy")
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateClosed:       "closed",
		StateConnecting:   "connecting",
		StateOpen:         "open",
		StateReconnecting: "reconnecting",
		StateUpdating:     "updating",
		StateClosing:      "closing",
		State(99):         "unknown",
	}
	for state, want := range cases {
		assert.Equal(t, want, state.String())
	}
}
