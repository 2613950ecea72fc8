package keyspace

// FxHash is a fast, non-cryptographic hash used purely for shard routing.
// It is the same algorithm popularized as "rustc-hash"/"fxhash": rotate the
// accumulator left by 5 bits, xor in the next word, multiply by a
// golden-ratio-derived odd constant. It is deterministic per process (no
// per-process random seed) which is exactly what spec.md requires for
// shard routing — the same key must always land on the same shard.
//
// No example in the corpus imports FxHash as a library (it is commonly
// hand-rolled even in Rust, where the name originates); this mirrors the
// teacher's own style of writing such small hash primitives inline rather
// than importing one (see the teacher's hand-rolled FNV-1a).
const fxSeed uint64 = 0x51_7c_c1_b7_27_22_0a_95

func fxHashBytes(b []byte) uint64 {
	h := uint64(0)
	for len(b) >= 8 {
		h = fxAdd(h, uint64(b[0])|uint64(b[1])<<8|uint64(b[2])<<16|uint64(b[3])<<24|
			uint64(b[4])<<32|uint64(b[5])<<40|uint64(b[6])<<48|uint64(b[7])<<56)
		b = b[8:]
	}
	if len(b) >= 4 {
		h = fxAdd(h, uint64(b[0])|uint64(b[1])<<8|uint64(b[2])<<16|uint64(b[3])<<24)
		b = b[4:]
	}
	if len(b) >= 2 {
		h = fxAdd(h, uint64(b[0])|uint64(b[1])<<8)
		b = b[2:]
	}
	if len(b) >= 1 {
		h = fxAdd(h, uint64(b[0]))
	}
	return h
}

func fxAdd(h, word uint64) uint64 {
	h = (h << 5) | (h >> (64 - 5))
	h ^= word
	return h * fxSeed
}

// FxHash hashes a Key for shard routing.
func FxHash(k Key) uint64 {
	return fxHashBytes([]byte(k))
}
