// Package integrity verifies a downloaded patch package against the
// expected digest recorded in its manifest entry, supporting the same
// hash-algorithm family the legacy tooling produced manifests with.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/cloudflare/circl/xof/k12"
	"github.com/jzelinskie/whirlpool"
	"github.com/spaolacci/murmur3"
	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/ripemd160"
	"golang.org/x/crypto/sha3"
	"lukechampine.com/blake3"
)

// ErrMismatch is returned when a computed digest does not match the
// expected one.
type ErrMismatch struct {
	Algo     string
	Expected string
	Got      string
}

func (e *ErrMismatch) Error() string {
	return fmt.Sprintf("integrity: %s digest mismatch: expected %s, got %s", e.Algo, e.Expected, e.Got)
}

// ErrUnknownAlgo is returned for an unrecognized algorithm prefix.
type ErrUnknownAlgo struct {
	Algo string
}

func (e *ErrUnknownAlgo) Error() string {
	return fmt.Sprintf("integrity: unknown hash algorithm %q", e.Algo)
}

// Verify checks data against spec, a manifest hash field of the form
// "algo:hexdigest" (e.g. "sha256:abcd…"). A bare hex string with no
// "algo:" prefix is treated as sha256, matching the reference tooling's
// default manifest field.
func Verify(spec string, data []byte) error {
	algo, expected, ok := strings.Cut(spec, ":")
	if !ok {
		algo, expected = "sha256", spec
	}
	algo = strings.ToLower(algo)

	got, err := digest(algo, data)
	if err != nil {
		return err
	}

	if !strings.EqualFold(got, expected) {
		return &ErrMismatch{Algo: algo, Expected: expected, Got: got}
	}
	return nil
}

func digest(algo string, data []byte) (string, error) {
	switch algo {
	case "sha256":
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:]), nil
	case "sha3-256", "sha3_256":
		h := sha3.New256()
		return sumHash(h, data), nil
	case "blake2b", "blake2b-256":
		h, _ := blake2b.New256(nil)
		return sumHash(h, data), nil
	case "blake3":
		h := blake3.New(32, nil)
		return sumHash(h, data), nil
	case "ripemd160":
		h := ripemd160.New()
		return sumHash(h, data), nil
	case "whirlpool":
		h := whirlpool.New()
		return sumHash(h, data), nil
	case "murmur3", "murmur3-128":
		h := murmur3.New128()
		return sumHash(h, data), nil
	case "xxhash", "xxh64":
		return hex.EncodeToString(encodeUint64(xxhash.Sum64(data))), nil
	case "xxh3":
		return hex.EncodeToString(encodeUint64(uint64(xxh3.Hash(data)))), nil
	case "k12", "kangarootwelve":
		h := k12.NewDraft10(nil)
		h.Write(data)
		out := make([]byte, 32)
		_, _ = h.Read(out)
		return hex.EncodeToString(out), nil
	default:
		return "", &ErrUnknownAlgo{Algo: algo}
	}
}

func sumHash(h hash.Hash, data []byte) string {
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}
