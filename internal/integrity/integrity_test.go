package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestVerifySHA256WithPrefix(t *testing.T) {
	data := []byte("patch payload")
	sum := sha256.Sum256(data)
	spec := "sha256:" + hex.EncodeToString(sum[:])

	if err := Verify(spec, data); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyBareHexDefaultsToSHA256(t *testing.T) {
	data := []byte("patch payload")
	sum := sha256.Sum256(data)
	spec := hex.EncodeToString(sum[:])

	if err := Verify(spec, data); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyMismatch(t *testing.T) {
	err := Verify("sha256:0000000000000000000000000000000000000000000000000000000000000000", []byte("x"))
	if err == nil {
		t.Fatalf("expected mismatch error")
	}
	if _, ok := err.(*ErrMismatch); !ok {
		t.Fatalf("expected *ErrMismatch, got %T: %v", err, err)
	}
}

func TestVerifyUnknownAlgo(t *testing.T) {
	err := Verify("notreal:deadbeef", []byte("x"))
	if err == nil {
		t.Fatalf("expected unknown algo error")
	}
	if _, ok := err.(*ErrUnknownAlgo); !ok {
		t.Fatalf("expected *ErrUnknownAlgo, got %T: %v", err, err)
	}
}

func TestVerifyEachSupportedAlgorithm(t *testing.T) {
	data := []byte("the quick brown fox")
	algos := []string{"sha256", "sha3-256", "blake2b", "blake3", "ripemd160", "whirlpool", "murmur3", "xxhash", "xxh3", "k12"}
	for _, algo := range algos {
		got, err := digest(algo, data)
		if err != nil {
			t.Fatalf("digest(%s): %v", algo, err)
		}
		if got == "" {
			t.Fatalf("digest(%s): empty result", algo)
		}
		if err := Verify(algo+":"+got, data); err != nil {
			t.Fatalf("Verify round trip for %s: %v", algo, err)
		}
	}
}
