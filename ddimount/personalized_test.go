// SPDX-License-Identifier: GPL-2.0-only

package ddimount

import "testing"

// gatedLockdown only yields UniqueChipID after StartPaired has been
// called, modeling the privileged-session-only field readUniqueChipID
// is built to retry around.
type gatedLockdown struct {
	*fakeLockdown
	chipID uint64
}

func (g *gatedLockdown) GetValue(domain, key string) (interface{}, error) {
	if key != "UniqueChipID" {
		return g.fakeLockdown.GetValue(domain, key)
	}
	if !g.pairCalled {
		return nil, errTest
	}
	return g.chipID, nil
}

func TestReadUniqueChipIDRetriesAfterPairing(t *testing.T) {
	gated := &gatedLockdown{fakeLockdown: &fakeLockdown{values: map[string]interface{}{}}, chipID: 12345}

	chipID, err := readUniqueChipID(gated)
	if err != nil {
		t.Fatalf("readUniqueChipID returned error: %v", err)
	}
	if chipID != 12345 {
		t.Errorf("chipID = %d, want 12345", chipID)
	}
	if !gated.pairCalled {
		t.Error("expected StartPaired to be called after the first failed read")
	}
}

func TestTryReadChipIDTypeCoercion(t *testing.T) {
	cases := []struct {
		raw  interface{}
		want uint64
	}{
		{uint64(7), 7},
		{int64(8), 8},
		{uint32(9), 9},
		{int(10), 10},
	}
	for _, c := range cases {
		lockdown := &fakeLockdown{values: map[string]interface{}{"UniqueChipID": c.raw}}
		got, err := tryReadChipID(lockdown)
		if err != nil {
			t.Errorf("tryReadChipID(%v) returned error: %v", c.raw, err)
			continue
		}
		if got != c.want {
			t.Errorf("tryReadChipID(%v) = %d, want %d", c.raw, got, c.want)
		}
	}
}
