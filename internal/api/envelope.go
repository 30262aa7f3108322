package api

import (
	"fmt"
	"math"
	"strings"
)

// Outcome is the terminal state of one prediction request.
type Outcome int

const (
	Success Outcome = iota
	ValidationFailure
	InternalFailure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case ValidationFailure:
		return "validation_failure"
	case InternalFailure:
		return "internal_failure"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Format selects which duration representations a success envelope carries.
type Format int

const (
	FormatBoth Format = iota
	FormatSeconds
	FormatHMS
)

// ParseFormat accepts "", "both", "seconds" and "hms" (case-insensitive).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "both":
		return FormatBoth, nil
	case "seconds", "raw":
		return FormatSeconds, nil
	case "hms":
		return FormatHMS, nil
	default:
		return FormatBoth, fmt.Errorf("%w: unknown format %q (want both, seconds or hms)", ErrMalformedPayload, s)
	}
}

// Envelope is the body returned for every request. Exactly one of the
// success fields or Error is populated.
type Envelope struct {
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	DurationHMS     string   `json:"duration_hms,omitempty"`
	Error           string   `json:"error,omitempty"`
}

func successEnvelope(seconds float64, format Format) Envelope {
	var env Envelope
	if format != FormatHMS {
		env.DurationSeconds = &seconds
	}
	if format != FormatSeconds {
		env.DurationHMS = HMS(seconds)
	}
	return env
}

// Map renders the envelope as a generic mapping, used for the gRPC Struct
// response.
func (e Envelope) Map() map[string]any {
	m := make(map[string]any, 2)
	if e.Error != "" {
		m["error"] = e.Error
		return m
	}
	if e.DurationSeconds != nil {
		m["duration_seconds"] = *e.DurationSeconds
	}
	if e.DurationHMS != "" {
		m["duration_hms"] = e.DurationHMS
	}
	return m
}

// HMS renders seconds as H:MM:SS, truncating every component. Hours are not
// wrapped, so very large durations still render without overflow.
func HMS(seconds float64) string {
	total := math.Trunc(seconds)
	h := math.Floor(total / 3600)
	m := math.Floor(math.Mod(total, 3600) / 60)
	s := math.Mod(total, 60)
	return fmt.Sprintf("%.0f:%02.0f:%02.0f", h, m, s)
}
