package chunker

import (
	"bytes"
	"testing"
)

func TestDeltaRoundTrip_IdenticalFile(t *testing.T) {
	basis := bytes.Repeat([]byte("abcdefgh"), 200) // 1600 bytes

	sig, err := ComputeSignature(bytes.NewReader(basis), 64)
	if err != nil {
		t.Fatalf("ComputeSignature: %v", err)
	}

	ops, err := ComputeDelta(bytes.NewReader(basis), sig)
	if err != nil {
		t.Fatalf("ComputeDelta: %v", err)
	}
	if DeltaSize(ops) != 0 {
		t.Errorf("expected zero literal bytes for an identical file, got %d", DeltaSize(ops))
	}

	var out bytes.Buffer
	if err := ApplyDelta(bytes.NewReader(basis), sig.BlockSize, ops, &out); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if !bytes.Equal(out.Bytes(), basis) {
		t.Error("reconstructed file does not match basis for an identical file")
	}
}

func TestDeltaRoundTrip_AppendedData(t *testing.T) {
	basis := bytes.Repeat([]byte("0123456789"), 100) // 1000 bytes
	modified := append(append([]byte{}, basis...), []byte("EXTRA TAIL DATA")...)

	sig, err := ComputeSignature(bytes.NewReader(basis), 64)
	if err != nil {
		t.Fatalf("ComputeSignature: %v", err)
	}

	ops, err := ComputeDelta(bytes.NewReader(modified), sig)
	if err != nil {
		t.Fatalf("ComputeDelta: %v", err)
	}

	var out bytes.Buffer
	if err := ApplyDelta(bytes.NewReader(basis), sig.BlockSize, ops, &out); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if !bytes.Equal(out.Bytes(), modified) {
		t.Errorf("reconstructed file does not match modified input:\n got  %q\n want %q", out.Bytes(), modified)
	}
}

func TestDeltaRoundTrip_InsertedData(t *testing.T) {
	basis := bytes.Repeat([]byte("WXYZ"), 300) // 1200 bytes
	modified := append(append([]byte{}, basis[:400]...), append([]byte("<<INSERTED>>"), basis[400:]...)...)

	sig, err := ComputeSignature(bytes.NewReader(basis), 100)
	if err != nil {
		t.Fatalf("ComputeSignature: %v", err)
	}

	ops, err := ComputeDelta(bytes.NewReader(modified), sig)
	if err != nil {
		t.Fatalf("ComputeDelta: %v", err)
	}

	var out bytes.Buffer
	if err := ApplyDelta(bytes.NewReader(basis), sig.BlockSize, ops, &out); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if !bytes.Equal(out.Bytes(), modified) {
		t.Errorf("reconstructed file does not match modified input after insertion")
	}
}

func TestDeltaRoundTrip_EmptyNewData(t *testing.T) {
	basis := []byte("some basis content")
	sig, err := ComputeSignature(bytes.NewReader(basis), 8)
	if err != nil {
		t.Fatalf("ComputeSignature: %v", err)
	}

	ops, err := ComputeDelta(bytes.NewReader(nil), sig)
	if err != nil {
		t.Fatalf("ComputeDelta: %v", err)
	}
	if len(ops) != 0 {
		t.Errorf("expected no ops for empty new data, got %d", len(ops))
	}
}

func TestWeakChecksum_RollMatchesRecompute(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, again and again")
	window := 8

	rc := newRollingChecksum(data[:window])
	for i := 1; i+window <= len(data); i++ {
		rc.roll(data[i-1], data[i+window-1])
		want := weakChecksum(data[i : i+window])
		if rc.value() != want {
			t.Fatalf("rolling checksum diverged at i=%d: got %d want %d", i, rc.value(), want)
		}
	}
}
