package api

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
)

func TestHMS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "0:00:00"},
		{59.999, "0:00:59"},
		{60, "0:01:00"},
		{543.57, "0:09:03"},
		{3599.9, "0:59:59"},
		{3725.9, "1:02:05"},
		{90061, "25:01:01"},
	}
	for _, tc := range tests {
		if got := HMS(tc.seconds); got != tc.want {
			t.Errorf("HMS(%v) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}

func TestHMSBeyondInt64(t *testing.T) {
	t.Parallel()

	// 1e19 is exact in float64 and 1e19 mod 3600 = 2800.
	if got := HMS(1e19); !strings.HasSuffix(got, ":46:40") || strings.Contains(got, "-") {
		t.Fatalf("HMS(1e19) = %q", got)
	}
	for _, seconds := range []float64{math.MaxInt64, 1e300, math.MaxFloat64} {
		got := HMS(seconds)
		if strings.Contains(got, "-") || strings.Count(got, ":") != 2 {
			t.Errorf("HMS(%v) = %q", seconds, got)
		}
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := map[string]Format{
		"":        FormatBoth,
		"both":    FormatBoth,
		"SECONDS": FormatSeconds,
		"raw":     FormatSeconds,
		" hms ":   FormatHMS,
	}
	for in, want := range tests {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseFormat("minutes"); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("ParseFormat(minutes) err = %v, want ErrMalformedPayload", err)
	}
}

func TestEnvelopeJSON(t *testing.T) {
	t.Parallel()

	ok, err := json.Marshal(successEnvelope(543.5, FormatBoth))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(ok) != `{"duration_seconds":543.5,"duration_hms":"0:09:03"}` {
		t.Fatalf("success envelope = %s", ok)
	}

	failed, err := json.Marshal(Envelope{Error: "bad"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(failed) != `{"error":"bad"}` {
		t.Fatalf("failure envelope = %s", failed)
	}

	// Zero seconds is still reported.
	zero, _ := json.Marshal(successEnvelope(0, FormatSeconds))
	if !strings.Contains(string(zero), `"duration_seconds":0`) {
		t.Fatalf("zero envelope = %s", zero)
	}
}

func TestEnvelopeMap(t *testing.T) {
	m := successEnvelope(61, FormatBoth).Map()
	if m["duration_seconds"] != 61.0 || m["duration_hms"] != "0:01:01" || len(m) != 2 {
		t.Fatalf("Map = %v", m)
	}
	if m := (Envelope{Error: "x"}).Map(); len(m) != 1 || m["error"] != "x" {
		t.Fatalf("failure Map = %v", m)
	}
}

func TestOutcomeString(t *testing.T) {
	if Success.String() != "success" || ValidationFailure.String() != "validation_failure" || InternalFailure.String() != "internal_failure" {
		t.Fatalf("unexpected outcome labels")
	}
	if s := Outcome(9).String(); s != "outcome(9)" {
		t.Fatalf("Outcome(9) = %q", s)
	}
}
