package harness

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/sidecar/internal/msg"
	"github.com/roach88/sidecar/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %s\n", event.Seq, event.Channel, event.Type, event.GUID)
		}
	}

	return buf.String()
}

// onChannel returns the events emitted on channel, or every event when
// channel is empty.
func onChannel(trace []TraceEvent, channel string) []TraceEvent {
	if channel == "" {
		return trace
	}
	var out []TraceEvent
	for _, event := range trace {
		if event.Channel == channel {
			out = append(out, event)
		}
	}
	return out
}

// assertOutputContains checks that some emitted payload contains the
// expected fields (subset match).
func assertOutputContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range onChannel(trace, assertion.Channel) {
		if matchFields(event.Payload, assertion.Fields) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertOutputContains,
		Expected: fmt.Sprintf("payload on %q with fields %v", assertion.Channel, assertion.Fields),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertOutputOrder checks that channels first emit in the listed order.
// Other channels may emit in between.
func assertOutputOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if positions[event.Channel] == 0 {
			positions[event.Channel] = i + 1 // 1-indexed for readability
		}
	}

	for _, channel := range assertion.Channels {
		if positions[channel] == 0 {
			return &AssertionError{
				Type:     AssertOutputOrder,
				Expected: fmt.Sprintf("all channels emit: %v", assertion.Channels),
				Actual:   fmt.Sprintf("nothing emitted on %s", channel),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Channels); i++ {
		prev := assertion.Channels[i-1]
		curr := assertion.Channels[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertOutputOrder,
				Expected: fmt.Sprintf("channels in order: %v", assertion.Channels),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertOutputCount checks the number of emitted messages.
func assertOutputCount(trace []TraceEvent, assertion Assertion) error {
	count := len(onChannel(trace, assertion.Channel))
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertOutputCount,
			Expected: fmt.Sprintf("%d message(s) on %q", assertion.Count, assertion.Channel),
			Actual:   fmt.Sprintf("%d message(s)", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertCounter checks one stage counter after the last step.
func assertCounter(result *Result, assertion Assertion) error {
	counters, ok := result.Counters[assertion.Stage]
	if !ok {
		return &AssertionError{
			Type:     AssertCounter,
			Expected: fmt.Sprintf("stage %s", assertion.Stage),
			Actual:   "no such stage",
		}
	}
	got := counters[assertion.Counter]
	if got != assertion.Value {
		return &AssertionError{
			Type:     AssertCounter,
			Expected: fmt.Sprintf("%s.%s = %d", assertion.Stage, assertion.Counter, assertion.Value),
			Actual:   fmt.Sprintf("%d (counters %v)", got, counters),
		}
	}
	return nil
}

// assertFinalState checks the processing state after the last step.
func assertFinalState(result *Result, assertion Assertion) error {
	if result.State != assertion.State {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: assertion.State,
			Actual:   result.State,
		}
	}
	return nil
}

// assertRecordedCount counts messages written to every recording.
func assertRecordedCount(ctx context.Context, st *store.Store, assertion Assertion) error {
	recs, err := st.ListRecordings(ctx)
	if err != nil {
		return fmt.Errorf("recorded_count: list recordings: %w", err)
	}

	count := 0
	for _, rec := range recs {
		msgs, err := st.ReadMessages(ctx, rec.ID, msg.TypeInvalid)
		if err != nil {
			return fmt.Errorf("recorded_count: read %s: %w", rec.ID, err)
		}
		for _, m := range msgs {
			if assertion.Channel == "" || m.Channel == assertion.Channel {
				count++
			}
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertRecordedCount,
			Expected: fmt.Sprintf("%d recorded message(s) on %q", assertion.Count, assertion.Channel),
			Actual:   fmt.Sprintf("%d in %d recording(s)", count, len(recs)),
		}
	}
	return nil
}

// matchFields checks if actual contains every expected field (subset
// match). Nested maps match recursively; extra keys in actual are ignored.
func matchFields(actual map[string]any, expected map[string]any) bool {
	for key, expectedVal := range expected {
		actualVal, exists := actual[key]
		if !exists {
			return false
		}
		if !valuesEqual(actualVal, expectedVal) {
			return false
		}
	}
	return true
}

// valuesEqual compares two payload values. Numbers compare by value
// regardless of how YAML typed them; maps use subset semantics.
func valuesEqual(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}

	if a, ok := toFloat(actual); ok {
		e, ok := toFloat(expected)
		return ok && a == e
	}

	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		return ok && matchFields(act, exp)
	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !valuesEqual(act[i], exp[i]) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(actual, expected)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for recorded_count assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertOutputContains:
			err = assertOutputContains(result.Trace, assertion)
		case AssertOutputOrder:
			err = assertOutputOrder(result.Trace, assertion)
		case AssertOutputCount:
			err = assertOutputCount(result.Trace, assertion)
		case AssertCounter:
			err = assertCounter(result, assertion)
		case AssertFinalState:
			err = assertFinalState(result, assertion)
		case AssertRecordedCount:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: recorded_count requires database context", i)
			} else {
				err = assertRecordedCount(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
