package sig

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	var seed [32]byte
	copy(seed[:], []byte("test-seed-0123456789abcdefghijkl"))

	pub, priv, err := KeyGen(seed, 0, 16, LifetimeTest)
	if err != nil {
		t.Fatalf("KeyGen: %v", err)
	}

	var msg [32]byte
	copy(msg[:], []byte("attestation-tree-hash-root-here!"))

	s, err := priv.Sign(3, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !Verify(pub, 3, msg, s, false) {
		t.Fatal("expected signature to verify")
	}

	var otherMsg [32]byte
	copy(otherMsg[:], []byte("a-completely-different-message!!"))
	if Verify(pub, 3, otherMsg, s, false) {
		t.Fatal("signature must not verify against a different message")
	}
}

func TestSignEpochOutOfRange(t *testing.T) {
	var seed [32]byte
	_, priv, err := KeyGen(seed, 10, 4, LifetimeTest)
	if err != nil {
		t.Fatalf("KeyGen: %v", err)
	}
	var msg [32]byte
	if _, err := priv.Sign(9, msg); err != ErrEpochOutOfRange {
		t.Fatalf("expected ErrEpochOutOfRange, got %v", err)
	}
	if _, err := priv.Sign(14, msg); err != ErrEpochOutOfRange {
		t.Fatalf("expected ErrEpochOutOfRange, got %v", err)
	}
}

func TestSignOneTimeProperty(t *testing.T) {
	var seed [32]byte
	_, priv, err := KeyGen(seed, 0, 4, LifetimeTest)
	if err != nil {
		t.Fatalf("KeyGen: %v", err)
	}
	var msg [32]byte
	if _, err := priv.Sign(1, msg); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := priv.Sign(1, msg); err != ErrEpochReused {
		t.Fatalf("expected ErrEpochReused, got %v", err)
	}
}

func TestBlankSignature(t *testing.T) {
	var seed [32]byte
	pub, _, err := KeyGen(seed, 0, 4, LifetimeTest)
	if err != nil {
		t.Fatalf("KeyGen: %v", err)
	}
	var msg [32]byte
	if Verify(pub, 0, msg, Signature{}, false) {
		t.Fatal("blank signature must not verify when allowBlank is false")
	}
	if !Verify(pub, 0, msg, Signature{}, true) {
		t.Fatal("blank signature must verify when allowBlank is true")
	}
}

func TestWireRoundTrip(t *testing.T) {
	var seed [32]byte
	_, priv, err := KeyGen(seed, 0, 4, LifetimeProduction)
	if err != nil {
		t.Fatalf("KeyGen: %v", err)
	}
	var msg [32]byte
	s, err := priv.Sign(2, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	wire := s.Bytes()
	back, err := SignatureFromBytes(wire)
	if err != nil {
		t.Fatalf("SignatureFromBytes: %v", err)
	}
	if back.Epoch != s.Epoch || back.AuthPathLen != s.AuthPathLen {
		t.Fatalf("round trip mismatch: got %+v, want %+v", back, s)
	}
}
