package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedactor(t *testing.T) *Redactor {
	t.Helper()
	return NewRedactor(newTestDetector(t), zap.NewNop())
}

func TestRedactTextPreserveFormat(t *testing.T) {
	r := newTestRedactor(t)

	redacted, applied := r.RedactText("My SSN is 123-45-6789, please process my refund", "*", true, "")

	assert.Equal(t, "My SSN is ***-**-****, please process my refund", redacted)
	require.NotEmpty(t, applied)
	assert.Equal(t, PIITypeSSN, applied[0].Type)
}

func TestRedactTextTagMode(t *testing.T) {
	r := newTestRedactor(t)

	redacted, applied := r.RedactText("SSN: 123-45-6789", "*", false, "")

	assert.Contains(t, redacted, "[REDACTED_SSN]")
	assert.NotContains(t, redacted, "123-45-6789")
	require.Len(t, applied, 1)
}

func TestRedactAlreadyRedactedOutput(t *testing.T) {
	r := newTestRedactor(t)

	once, applied := r.RedactText("SSN 123-45-6789 on file", "*", true, "")
	require.NotEmpty(t, applied)

	// Digits are gone after format-preserving redaction, so a second pass
	// must not find a fresh SSN.
	twice, again := r.RedactText(once, "*", true, "")
	assert.Equal(t, once, twice)
	assert.Empty(t, again)
}

func TestRedactBelowThreshold(t *testing.T) {
	r := newTestRedactor(t)

	// Area number 900 halves the confidence to 0.40, under the threshold.
	redacted, applied := r.RedactText("number 900-12-3456 noted", "*", true, "")

	assert.Equal(t, "number 900-12-3456 noted", redacted)
	assert.Empty(t, applied)
}

func TestRedactOverlappingSpansOnce(t *testing.T) {
	r := newTestRedactor(t)

	// Two api_key patterns overlap on this value; the span must be spliced
	// exactly once.
	redacted, applied := r.RedactText("token sk-abcdefghijklmnopqrstuvwxyz123456 end", "*", false, "")

	assert.Equal(t, "token [REDACTED_API_KEY] end", redacted)
	assert.GreaterOrEqual(t, len(applied), 2)
}

func TestRedactMap(t *testing.T) {
	r := newTestRedactor(t)

	data := map[string]any{
		"name": "Alice",
		"ssn":  "123-45-6789",
		"nested": map[string]any{
			"email": "alice@example.com",
		},
		"notes": []any{"card 4111111111111111", 42},
		"count": 7,
	}

	redacted, matches := r.RedactMap(data, "*", true)

	assert.Equal(t, "***-**-****", redacted["ssn"])
	nested, ok := redacted["nested"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, nested["email"], "alice@example.com")
	notes, ok := redacted["notes"].([]any)
	require.True(t, ok)
	assert.NotContains(t, notes[0], "4111111111111111")
	assert.Equal(t, 42, notes[1])
	assert.Equal(t, 7, redacted["count"])
	assert.NotEmpty(t, matches)

	// The key doubles as the context hint, so the ssn key boosts confidence.
	for _, m := range matches {
		if m.Type == PIITypeSSN {
			assert.GreaterOrEqual(t, m.Confidence, 0.95)
		}
	}
}
