package executor

import "github.com/IvanBrykalov/rkv/internal/resp"

// Reply is the result of executing one command, rendered onto the wire by
// internal/server's connection loop. Keeping it as an interface (rather
// than executor writing straight to a *resp.Writer) mirrors the teacher's
// habit of returning a plain value from cache.Get and leaving
// serialization to the caller — it also lets internal/aof and
// internal/script inspect a command's outcome without touching the wire at
// all.
type Reply interface {
	WriteTo(w *resp.Writer) error
}

// OK is the canonical "+OK" reply SET and the administrative commands use.
var OK Reply = simpleReply("OK")

type simpleReply string

func (r simpleReply) WriteTo(w *resp.Writer) error { return w.SimpleString(string(r)) }

// ErrReply is a RESP error reply. It also satisfies the error interface so
// executor-internal helpers can return it through a normal Go error path
// and have the connection loop render it without a type switch.
type ErrReply string

func (r ErrReply) Error() string                { return string(r) }
func (r ErrReply) WriteTo(w *resp.Writer) error { return w.Error(string(r)) }

// wrongType is the fixed message every type-mismatched command replies
// with, matching the Redis-family convention the widened command surface
// otherwise follows.
const wrongType = "WRONGTYPE Operation against a key holding the wrong kind of value"

func errWrongType() ErrReply { return ErrReply(wrongType) }

type intReply int64

func (r intReply) WriteTo(w *resp.Writer) error { return w.Integer(int64(r)) }

// bulkReply is a present bulk string; a nil bulkReply is the null bulk
// ("key does not exist"), distinct from an empty string.
type bulkReply []byte

func (r bulkReply) WriteTo(w *resp.Writer) error { return w.Bulk(r) }

type arrayReply [][]byte

func (r arrayReply) WriteTo(w *resp.Writer) error { return w.BulkArray(r) }

type nullArrayReply struct{}

func (nullArrayReply) WriteTo(w *resp.Writer) error { return w.NullArray() }

// The constructors below let internal/script build replies (per spec.md
// §4.8 step 6's value-to-frame mapping) without depending on this
// package's unexported reply types.

// SimpleStringReply builds a "+..." reply.
func SimpleStringReply(s string) Reply { return simpleReply(s) }

// IntReply builds a ":..." reply.
func IntReply(n int64) Reply { return intReply(n) }

// BulkReply builds a "$..." reply; b == nil is the null bulk.
func BulkReply(b []byte) Reply { return bulkReply(b) }

// ArrayReply builds a "*..." reply of bulk strings; items == nil is the
// empty array (distinct from NullArrayReply's null array).
func ArrayReply(items [][]byte) Reply { return arrayReply(items) }

// NullArrayReply builds the null-array ("*-1") reply.
func NullArrayReply() Reply { return nullArrayReply{} }

// ErrorReply builds a "-..." reply.
func ErrorReply(msg string) Reply { return ErrReply(msg) }
