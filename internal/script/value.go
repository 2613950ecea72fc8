package script

import (
	"strconv"

	"github.com/IvanBrykalov/rkv/internal/executor"
)

// Value is the dynamic type every expression in a script evaluates to:
// nil, bool, int64, string, []Value, OkValue, or ErrValue — exactly the
// shapes spec.md §4.8 step 6 lists a mapping for.
type Value any

// OkValue is a script's `{ok = "..."}` table, mapped to a Simple String
// reply.
type OkValue struct{ Msg string }

// ErrValue is a script's `{err = "..."}` table, mapped to an Error reply.
type ErrValue struct{ Msg string }

func (e ErrValue) Error() string { return e.Msg }

// toReply implements spec.md §4.8 step 6's value-to-frame mapping:
// string→Bulk, integer→Integer, {ok=…}→Simple, {err=…}→Error, array
// table→Array, nil/false→Null, true→Integer 1.
func toReply(v Value) executor.Reply {
	switch t := v.(type) {
	case nil:
		return executor.BulkReply(nil)
	case bool:
		if !t {
			return executor.BulkReply(nil)
		}
		return executor.IntReply(1)
	case int64:
		return executor.IntReply(t)
	case string:
		return executor.BulkReply([]byte(t))
	case OkValue:
		return executor.SimpleStringReply(t.Msg)
	case ErrValue:
		return executor.ErrorReply(t.Msg)
	case []Value:
		items := make([][]byte, len(t))
		for i, el := range t {
			items[i] = toBulkBytes(el)
		}
		return executor.ArrayReply(items)
	default:
		return executor.ErrorReply("ERR unsupported script return type")
	}
}

// toBulkBytes renders a scalar Value to its bulk-string bytes, for array
// elements (arrays nest only one level deep — spec.md's mapping doesn't
// describe nested tables).
func toBulkBytes(v Value) []byte {
	switch t := v.(type) {
	case nil:
		return nil
	case int64:
		return []byte(strconv.FormatInt(t, 10))
	case string:
		return []byte(t)
	case bool:
		if t {
			return []byte("1")
		}
		return nil
	default:
		return nil
	}
}
