package keyspace

// Key is an immutable, shared, comparable byte string. Go strings are
// already immutable and share their backing array across copies, so a plain
// string is the idiomatic equivalent of the spec's "shared-ownership
// immutable byte string": the shard map, the eviction policy's structures,
// and the script overlay can all hold a Key without duplicating storage.
type Key string

// ElementKind tags the two possible shapes of a list/hash/set member.
type ElementKind uint8

const (
	ElementBytes ElementKind = iota
	ElementInt
)

// Element is a single list item, hash value, or set member: either raw
// bytes or an integer, the same encoding optimization SET applies to
// top-level scalars (bytes_to_i64 succeeds -> SimpleInt).
type Element struct {
	Kind ElementKind
	Str  []byte
	Int  int64
}

// NewElement canonicalizes raw bytes into an Element, preferring the
// integer encoding when the bytes parse as a decimal int64.
func NewElement(b []byte) Element {
	if n, ok := bytesToInt64(b); ok {
		return Element{Kind: ElementInt, Int: n}
	}
	return Element{Kind: ElementBytes, Str: append([]byte(nil), b...)}
}

// Bytes renders the element back to its canonical decimal/text form.
func (e Element) Bytes() []byte {
	if e.Kind == ElementInt {
		return []byte(formatInt64(e.Int))
	}
	return e.Str
}

// size returns the element's heap-overhead-inclusive memory cost.
func (e Element) size() int64 {
	const elemOverhead = 16 // slice/interface header approximation
	if e.Kind == ElementInt {
		return elemOverhead
	}
	return elemOverhead + int64(len(e.Str))
}

// DataKind tags the five variants an Entry's Data can hold.
type DataKind uint8

const (
	KindSimpleString DataKind = iota
	KindSimpleInt
	KindList
	KindHash
	KindSet
)

// Data is the tagged union of everything a key can map to.
type Data struct {
	Kind DataKind

	Str  []byte
	Int  int64
	List []Element
	Hash map[string]Element
	Set  map[string]Element // member's canonical text form is the set key
}

// NewScalarData canonicalizes raw value bytes the same way SET does:
// integer-decimal text is stored as SimpleInt, everything else as
// SimpleString.
func NewScalarData(b []byte) Data {
	if n, ok := bytesToInt64(b); ok {
		return Data{Kind: KindSimpleInt, Int: n}
	}
	return Data{Kind: KindSimpleString, Str: append([]byte(nil), b...)}
}

// Size computes the struct+heap overhead attributable to this Data value.
// Computed once at write time and cached on the Entry; never recomputed
// in place.
func (d Data) Size() int64 {
	const structOverhead int64 = 32
	switch d.Kind {
	case KindSimpleInt:
		return structOverhead + 8
	case KindSimpleString:
		return structOverhead + int64(len(d.Str))
	case KindList:
		n := structOverhead
		for _, e := range d.List {
			n += e.size()
		}
		return n
	case KindHash:
		n := structOverhead
		for k, v := range d.Hash {
			n += int64(len(k)) + 16 + v.size()
		}
		return n
	case KindSet:
		n := structOverhead
		for k, v := range d.Set {
			n += int64(len(k)) + 16 + v.size()
		}
		return n
	default:
		return structOverhead
	}
}

// Entry is the unit of storage for one key.
type Entry struct {
	Data      Data
	ExpiresAt *int64 // absolute deadline in ms on the shared clock; nil = no TTL
	DataSize  int64  // precomputed total memory cost, stored not recomputed
}

// NewEntry builds an Entry with DataSize computed from Data.
func NewEntry(d Data, expiresAt *int64) *Entry {
	return &Entry{Data: d, ExpiresAt: expiresAt, DataSize: d.Size()}
}

// bytesToInt64 parses b as a decimal (optionally signed) integer, rejecting
// anything with leading/trailing junk or a leading '+' (redis-style
// canonicalization only ever reads "-?[0-9]+"). Leading zeros are accepted
// and canonicalized away: "042" parses to 42, same as "42".
func bytesToInt64(b []byte) (int64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	i := 0
	neg := false
	if b[0] == '-' {
		neg = true
		i++
	}
	if i >= len(b) {
		return 0, false
	}
	var n int64
	for ; i < len(b); i++ {
		c := b[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		d := int64(c - '0')
		// overflow guard
		if n > (1<<63-1-d)/10 {
			return 0, false
		}
		n = n*10 + d
	}
	if neg {
		n = -n
	}
	return n, true
}

func formatInt64(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	var buf [20]byte
	i := len(buf)
	var u uint64
	if neg {
		// Two's-complement-safe negation: avoids overflow for math.MinInt64.
		u = uint64(-(n + 1)) + 1
	} else {
		u = uint64(n)
	}
	for u > 0 {
		i--
		buf[i] = byte('0' + u%10)
		u /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
