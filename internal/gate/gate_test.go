package gate

import "testing"

func boolPtr(v bool) *bool { return &v }

func TestDefaultDisabled(t *testing.T) {
	t.Parallel()
	g := New(nil)
	if g.Enabled() {
		t.Fatal("gate must start disabled")
	}
}

func TestSetEnabled(t *testing.T) {
	t.Parallel()
	g := New(nil)
	if !g.SetEnabled(true) {
		t.Fatal("SetEnabled rejected without an override")
	}
	if !g.Enabled() {
		t.Fatal("gate should be enabled")
	}
	if !g.SetEnabled(false) {
		t.Fatal("SetEnabled rejected without an override")
	}
	if g.Enabled() {
		t.Fatal("gate should be disabled")
	}
}

func TestOverrideWins(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		override bool
	}{
		{name: "forced enabled", override: true},
		{name: "forced disabled", override: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := New(boolPtr(tt.override))
			if !g.Overridden() {
				t.Fatal("Overridden() should be true")
			}
			if g.Enabled() != tt.override {
				t.Fatalf("Enabled = %v, want %v", g.Enabled(), tt.override)
			}
			// Mutation is rejected and the effective value is untouched.
			if g.SetEnabled(!tt.override) {
				t.Fatal("SetEnabled must be rejected while overridden")
			}
			if g.Enabled() != tt.override {
				t.Fatalf("Enabled changed under override: %v", g.Enabled())
			}
		})
	}
}
