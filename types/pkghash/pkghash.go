package pkghash

import (
	"encoding"
	"encoding/hex"
	"fmt"
	"hash"

	"github.com/anacrolix/torrent/bencode"
	"github.com/minio/sha256-simd"
	"github.com/multiformats/go-multihash"
)

const Size = sha256.Size

// 32-byte SHA-256 hash used for package identifiers and segments.
type T [Size]byte

var _ fmt.Formatter = (*T)(nil)

func (t T) Format(f fmt.State, c rune) {
	f.Write([]byte(t.HexString()))
}

func (t T) Bytes() []byte {
	return t[:]
}

func (t T) IsZero() bool {
	return t == T{}
}

func (t T) String() string {
	return t.HexString()
}

func (t T) HexString() string {
	return hex.EncodeToString(t[:])
}

// The short form used in log lines.
func (t T) ShortString() string {
	return t.HexString()[:12]
}

func (t *T) FromHexString(s string) (err error) {
	if len(s) != 2*Size {
		err = fmt.Errorf("hash hex string has bad length: %d", len(s))
		return
	}
	n, err := hex.Decode(t[:], []byte(s))
	if err != nil {
		return
	}
	if n != Size {
		panic(n)
	}
	return
}

// Returns the multihash encoding of the digest, for interop with content addressed systems.
func (t T) Multihash() multihash.Multihash {
	mh, err := multihash.Encode(t[:], multihash.SHA2_256)
	if err != nil {
		// Only fails for unknown codes or bad lengths, neither of which can happen here.
		panic(err)
	}
	return mh
}

var (
	_ encoding.TextUnmarshaler = (*T)(nil)
	_ encoding.TextMarshaler   = T{}
	_ bencode.Marshaler        = T{}
	_ bencode.Unmarshaler      = (*T)(nil)
)

func (t *T) UnmarshalText(b []byte) error {
	return t.FromHexString(string(b))
}

func (t T) MarshalText() (text []byte, err error) {
	return []byte(t.HexString()), nil
}

func (t T) MarshalBencode() ([]byte, error) {
	return bencode.Marshal(t[:])
}

func (t *T) UnmarshalBencode(b []byte) error {
	var s []byte
	err := bencode.Unmarshal(b, &s)
	if err != nil {
		return err
	}
	if len(s) != Size {
		return fmt.Errorf("hash has bad length: %d", len(s))
	}
	copy(t[:], s)
	return nil
}

func FromHexString(s string) (h T) {
	err := h.FromHexString(s)
	if err != nil {
		panic(err)
	}
	return
}

func New() hash.Hash {
	return sha256.New()
}

// Copies the digest out of a hasher created by New.
func FromHash(h hash.Hash) (ret T) {
	copy(ret[:], h.Sum(nil))
	return
}

func HashBytes(b []byte) (ret T) {
	return sha256.Sum256(b)
}

// Hashes the concatenation of the given hashes. This is how package identifiers are derived from
// their segment hashes.
func Concat(hs []T) T {
	h := New()
	for _, x := range hs {
		h.Write(x[:])
	}
	return FromHash(h)
}
