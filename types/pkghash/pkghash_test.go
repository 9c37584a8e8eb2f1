package pkghash

import (
	"testing"

	"github.com/anacrolix/torrent/bencode"
	"github.com/go-quicktest/qt"
	"github.com/multiformats/go-multihash"
)

func TestHexRoundTrip(t *testing.T) {
	h := HashBytes([]byte("hello"))
	qt.Assert(t, qt.Equals(FromHexString(h.HexString()), h))
	var h2 T
	qt.Assert(t, qt.IsNotNil(h2.FromHexString("abcd")))
}

func TestBencodeRoundTrip(t *testing.T) {
	h := HashBytes([]byte("segment"))
	b, err := bencode.Marshal(h)
	qt.Assert(t, qt.IsNil(err))
	qt.Check(t, qt.Equals(len(b), len("32:")+Size))
	var out T
	qt.Assert(t, qt.IsNil(bencode.Unmarshal(b, &out)))
	qt.Check(t, qt.Equals(out, h))
	qt.Check(t, qt.IsNotNil(bencode.Unmarshal([]byte("3:abc"), &out)))
}

func TestConcatMatchesHashOfJoinedBytes(t *testing.T) {
	a := HashBytes([]byte("a"))
	b := HashBytes([]byte("b"))
	joined := append(a.Bytes(), b.Bytes()...)
	qt.Check(t, qt.Equals(Concat([]T{a, b}), HashBytes(joined)))
	qt.Check(t, qt.Not(qt.Equals(Concat([]T{a, b}), Concat([]T{b, a}))))
}

func TestMultihash(t *testing.T) {
	h := HashBytes(nil)
	dm, err := multihash.Decode(h.Multihash())
	qt.Assert(t, qt.IsNil(err))
	qt.Check(t, qt.Equals(dm.Code, uint64(multihash.SHA2_256)))
	qt.Check(t, qt.DeepEquals(dm.Digest, h.Bytes()))
}
