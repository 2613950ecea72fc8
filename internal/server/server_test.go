package server_test

import (
	"bufio"
	"log"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/rkv/internal/executor"
	"github.com/IvanBrykalov/rkv/internal/keyspace"
	"github.com/IvanBrykalov/rkv/internal/policy/lru"
	"github.com/IvanBrykalov/rkv/internal/server"
)

type fakeClock struct{ ms int64 }

func (c *fakeClock) NowMillis() int64 { return c.ms }

func testLogger() *log.Logger { return log.New(logDiscard{}, "", 0) }

type logDiscard struct{}

func (logDiscard) Write(p []byte) (int, error) { return len(p), nil }

func TestListenerServesPingAndSet(t *testing.T) {
	clk := &fakeClock{ms: 1000}
	ks := keyspace.New(4, lru.New(), clk)
	ex := executor.New(ks, clk, nil)

	ln, err := server.Listen("127.0.0.1:0", ex, testLogger())
	require.NoError(t, err)

	shutdown := make(chan struct{})
	serveDone := make(chan error, 1)
	go func() { serveDone <- ln.Serve(shutdown) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("*2\r\n$4\r\nPING\r\n$5\r\nhello\r\n"))
	require.NoError(t, err)

	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "$5\r\n", line)
	payload := make([]byte, 7)
	_, err = r.Read(payload)
	require.NoError(t, err)
	require.Equal(t, "hello\r\n", string(payload))

	_, err = conn.Write([]byte("*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n"))
	require.NoError(t, err)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "+OK\r\n", line)

	close(shutdown)
	select {
	case err := <-serveDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after shutdown")
	}
}

func TestOrchestratorJoinsStagesInOrder(t *testing.T) {
	orch := server.NewOrchestrator(testLogger())

	var order []string
	connDone := make(chan error, 1)
	evictionDone := make(chan error, 1)
	aofDone := make(chan struct{})
	clockDone := make(chan struct{})

	runDone := make(chan struct{})
	go func() {
		orch.Run(connDone, evictionDone, aofDone, clockDone)
		close(runDone)
	}()

	orch.TriggerApp()

	// The clock must not be told to stop (InfraDone must not fire) until
	// every app-level stage has reported done, per spec.md §4.11.
	select {
	case <-orch.InfraDone():
		t.Fatal("infra-shutdown fired before app-level stages completed")
	case <-time.After(20 * time.Millisecond):
	}

	order = append(order, "conn")
	connDone <- nil
	order = append(order, "eviction")
	evictionDone <- nil
	order = append(order, "aof")
	close(aofDone)

	select {
	case <-orch.InfraDone():
	case <-time.After(2 * time.Second):
		t.Fatal("infra-shutdown did not fire after app stages drained")
	}
	close(clockDone)

	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after clock drained")
	}
	require.Equal(t, []string{"conn", "eviction", "aof"}, order)
}
