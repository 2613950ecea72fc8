// Package server implements the connection task (spec.md §4.10) and the
// shutdown orchestrator (spec.md §4.11): the TCP listener, per-connection
// read/parse/dispatch/write loop, and the ordered quiesce of every
// long-lived background subsystem.
//
// Grounded on the teacher's general accept-loop-plus-worker-goroutines
// idiom (cmd/bench/main.go's worker goroutines each select on a done
// channel every iteration); no pack repo ships a network listener of its
// own, so the net/bufio wiring here follows stdlib idiom directly, per
// spec.md §1 ("the TCP listener ... mechanical layers around the core").
package server

import (
	"bufio"
	"errors"
	"log"
	"net"

	"github.com/IvanBrykalov/rkv/internal/command"
	"github.com/IvanBrykalov/rkv/internal/executor"
	"github.com/IvanBrykalov/rkv/internal/resp"
)

// connBufferSize is the initial capacity of a connection's read
// accumulation buffer; it grows as needed for larger bulk payloads.
const connBufferSize = 4096

// handleConn runs one connection's read/parse/dispatch/write loop until
// the peer disconnects, a fatal I/O error occurs, or shutdown is
// signaled, per spec.md §4.10.
func handleConn(conn net.Conn, ex *executor.Executor, shutdown <-chan struct{}, logger *log.Logger) {
	defer conn.Close()

	cc := executor.NewConnCtx(conn.RemoteAddr().String())
	bw := bufio.NewWriter(conn)
	w := resp.NewWriter(bw)

	// A reader goroutine feeds raw chunks to the loop over a channel so the
	// loop itself can select between "bytes arrived" and "shutdown fired",
	// per spec.md §4.10's "loop on select(read_bytes, shutdown_signal)".
	type readResult struct {
		b   []byte
		err error
	}
	reads := make(chan readResult)
	done := make(chan struct{})
	go func() {
		defer close(reads)
		for {
			chunk := make([]byte, connBufferSize)
			n, err := conn.Read(chunk)
			select {
			case reads <- readResult{b: chunk[:n], err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	defer close(done)

	buf := make([]byte, 0, connBufferSize)
	for {
		select {
		case <-shutdown:
			return
		case r, ok := <-reads:
			if !ok {
				return
			}
			if len(r.b) > 0 {
				buf = append(buf, r.b...)
				buf = drainFrames(buf, ex, cc, w, logger)
				if err := w.Flush(); err != nil {
					return
				}
			}
			if r.err != nil {
				if !errors.Is(r.err, net.ErrClosed) {
					logger.Printf("server: connection %s read error: %v", cc.PeerAddr, r.err)
				}
				return
			}
		}
	}
}

// drainFrames extracts and executes every complete command frame
// currently in buf, returning the unconsumed remainder. A protocol error
// resynchronizes per spec.md §4.10: advance past the offending frame by
// scanning to the next '*' marker, or clear the buffer if none is found.
func drainFrames(buf []byte, ex *executor.Executor, cc *executor.ConnCtx, w *resp.Writer, logger *log.Logger) []byte {
	for {
		args, n, err := resp.DecodeCommand(buf)
		switch {
		case err == resp.ErrIncomplete:
			return buf
		case err != nil:
			_ = w.Error("ERR " + err.Error())
			if off := resp.ResyncOffset(buf); off >= 0 {
				buf = buf[off:]
			} else {
				buf = buf[:0]
			}
			continue
		}
		buf = buf[n:]
		cmd, perr := command.Parse(args)
		if perr != nil {
			_ = w.Error("ERR " + perr.Error())
			continue
		}
		reply := ex.Execute(cc, cmd)
		if err := reply.WriteTo(w); err != nil {
			logger.Printf("server: connection %s write error: %v", cc.PeerAddr, err)
			return buf
		}
	}
}
