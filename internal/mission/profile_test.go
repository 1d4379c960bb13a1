package mission

import "testing"

func TestDefaultSchedule(t *testing.T) {
	p := Default()
	cases := map[uint64]string{
		0:    ModeStabilize,
		49:   ModeStabilize,
		50:   ModeGuided,
		149:  ModeGuided,
		150:  ModeStabilize,
		5000: ModeStabilize,
	}
	for n, want := range cases {
		if got := p.ModeAt(n); got != want {
			t.Errorf("ModeAt(%d)=%s, want %s", n, got, want)
		}
	}
}

func TestCyclicSchedule(t *testing.T) {
	p, ok := Lookup("patrol-loop")
	if !ok {
		t.Fatalf("patrol-loop not found")
	}
	if got := p.ModeAt(99); got != ModeGuided {
		t.Fatalf("ModeAt(99)=%s, want %s", got, ModeGuided)
	}
	if got := p.ModeAt(150); got != ModeStabilize {
		t.Fatalf("ModeAt(150)=%s, want %s", got, ModeStabilize)
	}
	if got := p.ModeAt(250); got != ModeGuided {
		t.Fatalf("ModeAt(250)=%s, want %s", got, ModeGuided)
	}
}

func TestLoadProfile(t *testing.T) {
	p, err := Load("testdata/simple.yaml")
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	if p.Name != "example" {
		t.Fatalf("unexpected name %s", p.Name)
	}
	if len(p.Phases) != 2 {
		t.Fatalf("expected 2 phases, got %d", len(p.Phases))
	}
	if p.ModeAt(10) != "AUTO" {
		t.Fatalf("expected AUTO at 10, got %s", p.ModeAt(10))
	}
}

func TestParseRejectsBadSchedules(t *testing.T) {
	bad := map[string]string{
		"empty":      "name: x\nphases: []\n",
		"no-mode":    "phases:\n  - until: 5\n  - mode: A\n",
		"decreasing": "phases:\n  - mode: A\n    until: 10\n  - mode: B\n    until: 5\n  - mode: C\n",
		"short-cycle": "cycle: 5\nphases:\n  - mode: A\n    until: 10\n  - mode: B\n",
	}
	for name, doc := range bad {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestBuiltInProfilesValid(t *testing.T) {
	for name, p := range BuiltIn() {
		if err := p.Validate(); err != nil {
			t.Errorf("%s: %v", name, err)
		}
		if p.Description == "" {
			t.Errorf("%s: missing description", name)
		}
	}
}
