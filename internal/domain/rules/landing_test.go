package rules

import (
	"encoding/json"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		velocity float64
		exploded bool
		want     LandingOutcome
	}{
		{0, false, SafeLanding},
		{4.9, false, SafeLanding},
		{5.0, false, InjuredLanding},
		{14.9, false, InjuredLanding},
		{15.0, false, Crashed},
		{80, false, Crashed},
		{0.1, true, Crashed},
		{4.9, true, Crashed},
	}

	for _, tt := range tests {
		if got := Classify(tt.velocity, tt.exploded); got != tt.want {
			t.Errorf("Classify(%v, %v) = %v, want %v", tt.velocity, tt.exploded, got, tt.want)
		}
	}
}

func TestClassifyIsPure(t *testing.T) {
	for i := 0; i < 3; i++ {
		if got := Classify(7, false); got != InjuredLanding {
			t.Fatalf("call %d returned %v", i, got)
		}
	}
}

func TestCustomThresholds(t *testing.T) {
	th := LandingThresholds{SafeSpeed: 3, InjuredSpeed: 6}
	if got := th.Classify(4, false); got != InjuredLanding {
		t.Errorf("got %v, want injured", got)
	}
	if got := th.Classify(6, false); got != Crashed {
		t.Errorf("got %v, want crashed", got)
	}
}

func TestOutcomeNames(t *testing.T) {
	names := map[LandingOutcome]string{
		SafeLanding:    "landing_safe",
		InjuredLanding: "landing_injured",
		Crashed:        "landing_crashed",
	}
	for o, want := range names {
		if o.EventName() != want {
			t.Errorf("%v.EventName() = %q, want %q", o, o.EventName(), want)
		}
	}
	if LandingOutcome(9).EventName() != "landing_unknown" {
		t.Error("unknown outcome should map to landing_unknown")
	}

	data, err := json.Marshal(struct {
		Outcome LandingOutcome `json:"outcome"`
	}{InjuredLanding})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"outcome":"INJURED_LANDING"}` {
		t.Errorf("json = %s", data)
	}

	var back LandingOutcome
	if err := back.UnmarshalText([]byte("CRASHED")); err != nil || back != Crashed {
		t.Errorf("UnmarshalText: %v %v", back, err)
	}
}
