package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDetector(zap.NewNop(), nil)
	require.NoError(t, err)
	return d
}

func TestDetectSSN(t *testing.T) {
	d := newTestDetector(t)

	t.Run("dashed format", func(t *testing.T) {
		matches := d.Detect("my SSN is 123-45-6789 thanks", "")
		require.NotEmpty(t, matches)
		assert.Equal(t, PIITypeSSN, matches[0].Type)
		assert.Equal(t, "123-45-6789", matches[0].Value)
		assert.InDelta(t, 0.80, matches[0].Confidence, 1e-9)
	})

	t.Run("context keyword boosts confidence", func(t *testing.T) {
		matches := d.Detect("123-45-6789", "social security number")
		require.NotEmpty(t, matches)
		assert.GreaterOrEqual(t, matches[0].Confidence, 0.95)
	})

	t.Run("invalid area numbers are downgraded", func(t *testing.T) {
		for _, text := range []string{"000-12-3456", "666-12-3456", "900-12-3456"} {
			matches := d.Detect(text, "")
			require.NotEmpty(t, matches, text)
			assert.InDelta(t, 0.40, matches[0].Confidence, 1e-9, text)
		}
	})

	t.Run("confidence capped at one", func(t *testing.T) {
		matches := d.Detect("card 4111111111111111", "credit card payment billing")
		require.NotEmpty(t, matches)
		for _, m := range matches {
			assert.LessOrEqual(t, m.Confidence, 1.0)
		}
	})
}

func TestDetectOrderingAndBounds(t *testing.T) {
	d := newTestDetector(t)

	texts := []string{
		"",
		"no pii here at all",
		"reach me at bob@example.com or 555-867-5309, SSN 123-45-6789",
		"server 10.0.0.1 token sk-abcdefghijklmnopqrstuvwxyz123456",
		strings.Repeat("a1 ", 100),
	}

	for _, text := range texts {
		matches := d.Detect(text, "")
		for i, m := range matches {
			assert.GreaterOrEqual(t, m.Start, 0)
			assert.Less(t, m.Start, m.End)
			assert.LessOrEqual(t, m.End, len(text))
			assert.Equal(t, text[m.Start:m.End], m.Value)
			if i > 0 {
				assert.LessOrEqual(t, matches[i-1].Start, m.Start, "matches must be sorted by start offset")
			}
		}
	}
}

func TestDetectOverlappingPatterns(t *testing.T) {
	d := newTestDetector(t)

	// The sk- prefix pattern and the generic long-token pattern both hit this
	// value; both matches are reported rather than deduplicated.
	matches := d.Detect("sk-abcdefghijklmnopqrstuvwxyz123456", "")

	apiKeyMatches := 0
	for _, m := range matches {
		if m.Type == PIITypeAPIKey {
			apiKeyMatches++
		}
	}
	assert.GreaterOrEqual(t, apiKeyMatches, 2)
}

func TestDetectEmptyAndMalformed(t *testing.T) {
	d := newTestDetector(t)

	assert.Empty(t, d.Detect("", ""))
	assert.Empty(t, d.Detect("   \t\n", ""))
	assert.Empty(t, d.Detect("héllo wörld ünïcode", "context"))
}

func TestCustomPatterns(t *testing.T) {
	t.Run("valid pattern is detected as custom", func(t *testing.T) {
		d, err := NewDetector(zap.NewNop(), []string{`\bEMP-\d{6}\b`})
		require.NoError(t, err)

		matches := d.Detect("employee badge EMP-004213", "")
		require.Len(t, matches, 1)
		assert.Equal(t, PIITypeCustom, matches[0].Type)
		assert.Equal(t, "EMP-004213", matches[0].Value)
	})

	t.Run("invalid pattern fails construction", func(t *testing.T) {
		_, err := NewDetector(zap.NewNop(), []string{`[unclosed`})
		assert.Error(t, err)
	})
}
