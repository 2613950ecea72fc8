package aof

import (
	"fmt"
	"io"

	"github.com/IvanBrykalov/rkv/internal/command"
	"github.com/IvanBrykalov/rkv/internal/executor"
	"github.com/IvanBrykalov/rkv/internal/resp"
)

// ReplayBufferSize is the streaming read buffer replay uses, "hundreds of
// MB" per spec.md §4.7 scaled down to a size a test or small deployment
// can still allocate comfortably; production can raise it via a bigger
// initial capacity without changing the algorithm.
const ReplayBufferSize = 16 << 20

// Replay streams every logged frame from r through the RESP decoder, the
// command parser, and ex — with AOF emission disabled on ex for the
// duration (the caller is responsible for constructing ex with a nil
// AOFAppender or otherwise suppressing re-logging) — per spec.md §4.7.
//
// Errors decoding or converting a complete frame are fatal: "the log is
// presumed trustworthy." A full buffer that still can't find a complete
// frame is also fatal ("a single command exceeded the replay buffer"). A
// trailing incomplete frame at EOF is not an error: spec.md §6 expects the
// file to be truncated at the last complete frame after a crash, and those
// residual bytes are simply discarded.
func Replay(r io.Reader, ex *executor.Executor) error {
	cc := executor.NewConnCtx("aof-replay")
	base := make([]byte, 0, ReplayBufferSize)
	buf := base
	chunk := make([]byte, 64*1024)

	for {
		n, readErr := r.Read(chunk)
		if n > 0 {
			if len(buf)+n > cap(buf) {
				// Rewind: copy the residual partial frame to the buffer head.
				buf = append(base[:0], buf...)
				if len(buf)+n > cap(buf) {
					return fmt.Errorf("aof: replay: a single command exceeded the %d-byte replay buffer", ReplayBufferSize)
				}
			}
			buf = append(buf, chunk[:n]...)
		}
		for {
			args, consumed, err := resp.DecodeCommand(buf)
			if err == resp.ErrIncomplete {
				break
			}
			if err != nil {
				return fmt.Errorf("aof: replay: corrupt log: %w", err)
			}
			cmd, err := command.Parse(args)
			if err != nil {
				return fmt.Errorf("aof: replay: invalid command: %w", err)
			}
			buf = buf[consumed:]
			ex.Execute(cc, cmd)
		}
		if readErr == io.EOF {
			// Any bytes left in buf here only got here via the ErrIncomplete
			// break above — a crash-truncated partial frame at the tail of
			// the log, the expected recovery case. Discard it and stop.
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("aof: replay: read error: %w", readErr)
		}
	}
}
