package mission

// Default is the three-stage demo schedule: stabilize on launch, a guided
// leg, then back to stabilize for the rest of the flight.
func Default() *Profile {
	p := BuiltIn()["demo"]
	return &p
}

// BuiltIn returns the predefined mission profiles keyed by name.
func BuiltIn() map[string]Profile {
	return map[string]Profile{
		"demo": {
			Name:        "demo",
			Description: "Stabilize after launch, fly a guided leg, then hold in stabilize.",
			Phases: []Phase{
				{Mode: ModeStabilize, Until: 50},
				{Mode: ModeGuided, Until: 150},
				{Mode: ModeStabilize},
			},
		},
		"patrol-loop": {
			Name:        "patrol-loop",
			Description: "Alternate guided and stabilize legs of equal length forever.",
			Cycle:       200,
			Phases: []Phase{
				{Mode: ModeGuided, Until: 100},
				{Mode: ModeStabilize},
			},
		},
		"survey": {
			Name:        "survey",
			Description: "Climb out, loiter over the survey area, return to launch.",
			Phases: []Phase{
				{Mode: ModeStabilize, Until: 20},
				{Mode: ModeGuided, Until: 60},
				{Mode: ModeLoiter, Until: 300},
				{Mode: ModeRTL},
			},
		},
	}
}

// Lookup returns a built-in profile by name.
func Lookup(name string) (*Profile, bool) {
	p, ok := BuiltIn()[name]
	if !ok {
		return nil, false
	}
	return &p, true
}
