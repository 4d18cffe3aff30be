package memory

import "testing"

func TestPutGetBlockRoundTrip(t *testing.T) {
	s := New()

	root := [32]byte{1}
	signed := newTestSignedBlock(t, 3)
	state := newTestState(t, 3)

	if err := s.PutBlock(root, signed, state); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}

	got, ok, err := s.GetSignedBlock(root)
	if err != nil || !ok {
		t.Fatalf("GetSignedBlock: ok=%v err=%v", ok, err)
	}
	if got.Message.Block.Slot != signed.Message.Block.Slot {
		t.Fatalf("slot mismatch: got %d want %d", got.Message.Block.Slot, signed.Message.Block.Slot)
	}

	slotRoot, ok, err := s.GetBlockRootBySlot(3)
	if err != nil || !ok || slotRoot != root {
		t.Fatalf("GetBlockRootBySlot: root=%x ok=%v err=%v", slotRoot, ok, err)
	}
}

func TestAttestationPoolsUpsertAndDrain(t *testing.T) {
	s := New()

	a1 := newTestAttestation(t, 1)
	a2 := newTestAttestation(t, 2)

	if err := s.PutLatestNewAttestation(7, a1); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.PutLatestNewAttestation(7, a2); err != nil {
		t.Fatalf("put: %v", err)
	}

	drained, err := s.DrainLatestNewAttestations()
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(drained) != 1 || drained[7].Message.Data.Slot != 2 {
		t.Fatalf("unexpected drain result: %+v", drained)
	}

	if _, ok, _ := s.GetLatestNewAttestation(7); ok {
		t.Fatal("pool should be empty after drain")
	}
}

func TestScalarFields(t *testing.T) {
	s := New()

	if _, ok, _ := s.GetHead(); ok {
		t.Fatal("head should be unset initially")
	}
	root := [32]byte{9}
	if err := s.SetHead(root); err != nil {
		t.Fatalf("SetHead: %v", err)
	}
	got, ok, err := s.GetHead()
	if err != nil || !ok || got != root {
		t.Fatalf("GetHead: got=%x ok=%v err=%v", got, ok, err)
	}

	if err := s.SetTime(42); err != nil {
		t.Fatalf("SetTime: %v", err)
	}
	tm, err := s.GetTime()
	if err != nil || tm != 42 {
		t.Fatalf("GetTime: got=%d err=%v", tm, err)
	}
}
