package domain

import "testing"

func TestBetween(t *testing.T) {
	sp, err := NewSpace(8, 3)
	if err != nil {
		t.Fatalf("NewSpace failed: %v", err)
	}

	id := func(v uint64) ID { return sp.FromUint64(v) }

	tests := []struct {
		name string
		x, a, b uint64
		want bool
	}{
		{"linear inside", 5, 1, 10, true},
		{"linear at upper bound", 10, 1, 10, true},
		{"linear at lower bound excluded", 1, 1, 10, false},
		{"linear outside", 20, 1, 10, false},
		{"wrap inside tail", 250, 200, 10, true},
		{"wrap inside head", 5, 200, 10, true},
		{"wrap outside", 100, 200, 10, false},
		{"whole ring when a==b", 123, 7, 7, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := id(tt.x).Between(id(tt.a), id(tt.b))
			if got != tt.want {
				t.Errorf("Between(%d,%d,%d) = %v, want %v", tt.x, tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestAddMod(t *testing.T) {
	sp, _ := NewSpace(8, 3)
	a := sp.FromUint64(250)
	b := sp.FromUint64(10)
	sum, err := sp.AddMod(a, b)
	if err != nil {
		t.Fatalf("AddMod failed: %v", err)
	}
	if sum.ToBigInt().Int64() != 4 {
		t.Errorf("AddMod(250,10) mod 256 = %d, want 4", sum.ToBigInt().Int64())
	}
}

func TestFingerStart(t *testing.T) {
	sp, _ := NewSpace(8, 3)
	self := sp.FromUint64(10)

	start, err := sp.FingerStart(self, 0)
	if err != nil {
		t.Fatalf("FingerStart failed: %v", err)
	}
	if start.ToBigInt().Int64() != 11 {
		t.Errorf("finger[0] start = %d, want 11", start.ToBigInt().Int64())
	}

	start, err = sp.FingerStart(self, 7)
	if err != nil {
		t.Fatalf("FingerStart failed: %v", err)
	}
	if start.ToBigInt().Int64() != (10+128)%256 {
		t.Errorf("finger[7] start = %d, want %d", start.ToBigInt().Int64(), (10+128)%256)
	}
}

func TestFromHexStringRejectsOverflow(t *testing.T) {
	sp, _ := NewSpace(8, 3)
	if _, err := sp.FromHexString("1ff"); err == nil {
		t.Errorf("expected error for value exceeding 8-bit space")
	}
	if _, err := sp.FromHexString("ff"); err != nil {
		t.Errorf("unexpected error for max 8-bit value: %v", err)
	}
}
