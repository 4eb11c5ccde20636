package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threelight/redisgate/config"
	"github.com/threelight/redisgate/keyspace"
	"github.com/threelight/redisgate/protocol"
	"github.com/threelight/redisgate/redisclient"
	"github.com/threelight/redisgate/schema"
)

// testServer starts a full gateway over a temp Unix socket against a
// miniredis backend, built from the default configuration.
func testServer(t *testing.T) (*Server, string, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	cfg := config.Default()

	client, err := redisclient.NewClient("redis://" + mr.Addr())
	require.NoError(t, err)
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { _ = client.Close() })

	grammar, err := keyspace.NewGrammar(cfg.Keyspace.Producers, cfg.Keyspace.Objects)
	require.NoError(t, err)

	schemas, err := schema.NewRegistry(cfg.Schemas)
	require.NoError(t, err)

	socketPath := filepath.Join(t.TempDir(), "gw.sock")
	srv := NewServer(Deps{
		SocketPath: socketPath,
		Client:     client,
		Grammar:    grammar,
		Schemas:    schemas,
	})
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop() })

	return srv, socketPath, mr
}

// testConn is a conforming client: it writes newline-terminated requests
// and reads replies as a stream of JSON objects. One decoder lives for the
// connection's lifetime, so back-to-back replies frame correctly.
type testConn struct {
	conn net.Conn
	dec  *json.Decoder
}

func dialGateway(t *testing.T, socketPath string) *testConn {
	t.Helper()
	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testConn{conn: conn, dec: json.NewDecoder(bufio.NewReader(conn))}
}

func (c *testConn) roundTrip(t *testing.T, request string) protocol.Response {
	t.Helper()
	_, err := c.conn.Write([]byte(request + "\n"))
	require.NoError(t, err)

	var resp protocol.Response
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, c.dec.Decode(&resp))
	require.NoError(t, c.conn.SetReadDeadline(time.Time{}))
	return resp
}

func TestScenario_SetValidPayload(t *testing.T) {
	_, socketPath, mr := testServer(t)
	c := dialGateway(t, socketPath)

	sub := mr.NewSubscriber()
	defer sub.Close()
	sub.Subscribe("cs:DiskUsage:object1")

	resp := c.roundTrip(t,
		`{"action":"set","key":"cs:DiskUsage:object1","value":{"version":1,"disk":"/dev/sda1","usage":42}}`)
	assert.Equal(t, protocol.StatusOk, resp.Status)
	assert.Equal(t, protocol.MsgCompleted, resp.Message)

	stored, err := mr.Get("cs:DiskUsage:object1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1,"disk":"/dev/sda1","usage":42}`, stored)

	select {
	case msg := <-sub.Messages():
		assert.Equal(t, "cs:DiskUsage:object1", msg.Channel)
		assert.Contains(t, msg.Message, "set: ")
	case <-time.After(time.Second):
		t.Fatal("notification not published")
	}
}

func TestScenario_UnknownProducerRejected(t *testing.T) {
	_, socketPath, mr := testServer(t)
	c := dialGateway(t, socketPath)

	resp := c.roundTrip(t, `{"action":"set","key":"cs:UnknownProducer:object1","value":{"x":1}}`)
	assert.Equal(t, protocol.StatusError, resp.Status)
	assert.Equal(t, protocol.MsgInvalidKey, resp.Message)

	// No backend call was made
	assert.False(t, mr.Exists("cs:UnknownProducer:object1"))
}

func TestScenario_SchemaViolationNamesField(t *testing.T) {
	_, socketPath, mr := testServer(t)
	c := dialGateway(t, socketPath)

	resp := c.roundTrip(t,
		`{"action":"set","key":"cs:ModemWatcher:object2","value":{"version":1,"status":"up"}}`)
	assert.Equal(t, protocol.StatusError, resp.Status)
	assert.Contains(t, resp.Message, "signal_strength")

	assert.False(t, mr.Exists("cs:ModemWatcher:object2"))
}

func TestScenario_InvalidAction(t *testing.T) {
	_, socketPath, _ := testServer(t)
	c := dialGateway(t, socketPath)

	resp := c.roundTrip(t, `{"action":"frobnicate","key":"cs:DiskUsage:object1"}`)
	assert.Equal(t, protocol.StatusError, resp.Status)
	assert.Equal(t, protocol.MsgInvalidAction, resp.Message)
}

func TestMalformedRequestKeepsConnectionAlive(t *testing.T) {
	_, socketPath, _ := testServer(t)
	c := dialGateway(t, socketPath)

	resp := c.roundTrip(t, `this is not json`)
	assert.Equal(t, protocol.StatusError, resp.Status)
	assert.Equal(t, protocol.MsgInvalidRequest, resp.Message)

	// The same connection still serves valid requests
	resp = c.roundTrip(t, `{"action":"del","key":"cs:Psmon:object1"}`)
	assert.Equal(t, protocol.StatusOk, resp.Status)
}

func TestDelIsIdempotent(t *testing.T) {
	_, socketPath, _ := testServer(t)
	c := dialGateway(t, socketPath)

	for i := 0; i < 2; i++ {
		resp := c.roundTrip(t, `{"action":"del","key":"cs:Psmon:object1"}`)
		assert.Equal(t, protocol.StatusOk, resp.Status, "attempt %d", i+1)
	}
}

func TestUnknownObjectSkipsSchemaCheck(t *testing.T) {
	_, socketPath, mr := testServer(t)
	c := dialGateway(t, socketPath)

	// Psmon has no registered schema: any value shape is accepted
	resp := c.roundTrip(t, `{"action":"set","key":"cs:Psmon:object1","value":[1,2,3]}`)
	assert.Equal(t, protocol.StatusOk, resp.Status)

	stored, err := mr.Get("cs:Psmon:object1")
	require.NoError(t, err)
	assert.Equal(t, `[1,2,3]`, stored)
}

func TestMultipleRequestsInOneWrite(t *testing.T) {
	_, socketPath, mr := testServer(t)
	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	// Two complete requests and the beginning of a third arrive in one
	// write; the framing layer must split on '\n' and keep the remainder.
	batch := `{"action":"set","key":"cs:Psmon:object1","value":1}` + "\n" +
		`{"action":"set","key":"cs:Psmon:object2","value":2}` + "\n" +
		`{"action":"set","key":"cs:Psmon`
	_, err = conn.Write([]byte(batch))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	dec := json.NewDecoder(reader)
	for i := 0; i < 2; i++ {
		var resp protocol.Response
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, dec.Decode(&resp))
		assert.Equal(t, protocol.StatusOk, resp.Status)
	}

	require.Eventually(t, func() bool {
		return mr.Exists("cs:Psmon:object1") && mr.Exists("cs:Psmon:object2")
	}, time.Second, 10*time.Millisecond)
}

func TestScenario_ConcurrentClientsOrderedResponses(t *testing.T) {
	_, socketPath, mr := testServer(t)

	const perClient = 10
	var wg sync.WaitGroup
	errs := make(chan error, 2)

	for client := 0; client < 2; client++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			conn, err := net.Dial("unix", socketPath)
			if err != nil {
				errs <- err
				return
			}
			defer conn.Close()
			dec := json.NewDecoder(bufio.NewReader(conn))

			for i := 0; i < perClient; i++ {
				key := fmt.Sprintf("cs:Psmon:object1:client%d_%d", id, i)
				req := fmt.Sprintf(`{"action":"set","key":"%s","value":%d}`, key, i)
				if _, err := conn.Write([]byte(req + "\n")); err != nil {
					errs <- err
					return
				}

				var resp protocol.Response
				if err := dec.Decode(&resp); err != nil {
					errs <- fmt.Errorf("client %d request %d: %w", id, i, err)
					return
				}
				if resp.Status != protocol.StatusOk {
					errs <- fmt.Errorf("client %d request %d: %s", id, i, resp.Message)
					return
				}
			}
		}(client)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// All twenty mutations landed
	for client := 0; client < 2; client++ {
		for i := 0; i < perClient; i++ {
			key := fmt.Sprintf("cs:Psmon:object1:client%d_%d", client, i)
			got, err := mr.Get(key)
			require.NoError(t, err, "key %s", key)
			assert.Equal(t, fmt.Sprintf("%d", i), got)
		}
	}
}

func TestServer_StartStopLifecycle(t *testing.T) {
	srv, socketPath, _ := testServer(t)

	// Double start is rejected
	assert.Error(t, srv.Start())

	require.NoError(t, srv.Stop())
	assert.Error(t, srv.Stop())

	// The socket is gone once stopped
	_, err := net.Dial("unix", socketPath)
	assert.Error(t, err)
}
