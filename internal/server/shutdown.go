package server

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/IvanBrykalov/rkv/internal/executor"
)

// Listener accepts connections on addr and runs each one's command loop
// against ex, joining every spawned connection goroutine on shutdown —
// spec.md §4.11's "connection task, which yields the set of per-connection
// tasks; await them all".
type Listener struct {
	ln     net.Listener
	ex     *executor.Executor
	logger *log.Logger

	wg sync.WaitGroup
}

// Listen binds addr and returns a Listener ready to Serve.
func Listen(addr string, ex *executor.Executor, logger *log.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln, ex: ex, logger: logger}, nil
}

// Addr returns the bound address (useful when addr was "host:0").
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Serve accepts connections until shutdown is closed, spawning one
// goroutine per connection via handleConn. It returns once the listener is
// closed and every spawned connection goroutine has exited, satisfying
// spec.md §4.11's ordering ("join the connection task, which yields the
// set of per-connection tasks; await them all").
func (l *Listener) Serve(shutdown <-chan struct{}) error {
	go func() {
		<-shutdown
		l.ln.Close()
	}()
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-shutdown:
				l.wg.Wait()
				return nil
			default:
				l.logger.Printf("server: accept error: %v", err)
				l.wg.Wait()
				return err
			}
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			handleConn(conn, l.ex, shutdown, l.logger)
		}()
	}
}

// Orchestrator implements spec.md §4.11's two-broadcast-channel shutdown
// protocol: app-shutdown stops connections, evictors, and the AOF writer
// (in that order); infra-shutdown stops the clock updater last, guaranteeing
// every acknowledged command is in the log before the process exits.
//
// Grounded on spec.md §4.11 directly for the ordering; two cancellable
// contexts stand in for the two broadcast channels the spec describes,
// following the same context.Context-as-cancellation-signal idiom
// internal/evictor.Engine.Run already uses for its own tick loop.
type Orchestrator struct {
	appCtx   context.Context
	infraCtx context.Context

	appCancelFn   context.CancelFunc
	infraCancelFn context.CancelFunc

	logger *log.Logger
}

// NewOrchestrator constructs an Orchestrator with its two shutdown
// contexts armed but not yet cancelled.
func NewOrchestrator(logger *log.Logger) *Orchestrator {
	appCtx, appCancel := context.WithCancel(context.Background())
	infraCtx, infraCancel := context.WithCancel(context.Background())
	return &Orchestrator{
		appCtx: appCtx, appCancelFn: appCancel,
		infraCtx: infraCtx, infraCancelFn: infraCancel,
		logger: logger,
	}
}

// AppDone returns the channel that closes when app-shutdown fires:
// connections, evictors, and the AOF writer all select on this.
func (o *Orchestrator) AppDone() <-chan struct{} { return o.appCtx.Done() }

// InfraDone returns the channel that closes when infra-shutdown fires:
// only the clock updater selects on this, and only after every app-level
// subsystem has already drained.
func (o *Orchestrator) InfraDone() <-chan struct{} { return o.infraCtx.Done() }

// AppContext returns the app-shutdown context directly, for subsystems
// (internal/evictor.Engine.Run) whose loop already takes a context.Context
// rather than a bare channel.
func (o *Orchestrator) AppContext() context.Context { return o.appCtx }

// InfraContext returns the infra-shutdown context directly, for
// internal/clock.Cache.Run.
func (o *Orchestrator) InfraContext() context.Context { return o.infraCtx }

// ListenForSignals blocks until SIGINT or SIGTERM arrives, then fires
// app-shutdown. Intended to run as its own goroutine.
func (o *Orchestrator) ListenForSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	o.logger.Printf("server: shutdown signal received")
	o.TriggerApp()
}

// TriggerApp fires app-shutdown without waiting for a signal — used by
// tests and by programmatic callers (e.g. a management command).
func (o *Orchestrator) TriggerApp() { o.appCancelFn() }

// Run drives the full ordered shutdown sequence spec.md §4.11 describes.
// Every subsystem is expected to already be running in its own goroutine,
// each selecting on AppDone (or, for the clock, InfraDone) to know when to
// stop; connDone/evictionDone/aofDone are closed (or receive a value) by
// those goroutines when they have fully drained. Run blocks until
// AppDone fires, then joins each stage strictly in spec.md §4.11's
// mandated order — connections, then eviction, then AOF — before firing
// infra-shutdown and joining the clock updater last.
func (o *Orchestrator) Run(
	connDone <-chan error,
	evictionDone <-chan error,
	aofDone <-chan struct{},
	clockDone <-chan struct{},
) {
	<-o.AppDone()
	if err := <-connDone; err != nil {
		o.logger.Printf("server: connection listener stopped with error: %v", err)
	}
	if err := <-evictionDone; err != nil {
		o.logger.Printf("server: eviction engine stopped with error: %v", err)
	}
	<-aofDone
	o.infraCancelFn()
	<-clockDone
}
