package security

import (
	"strings"
	"unicode"

	"go.uber.org/zap"
)

// RedactThreshold is the minimum match confidence the redactor acts on.
const RedactThreshold = 0.70

// Redactor rewrites text so that detected PII never leaves the process in the
// clear. It consumes Detector output and splices replacements in from the
// highest start offset down, so earlier offsets stay valid during rewriting.
type Redactor struct {
	detector *Detector
	logger   *zap.Logger
}

func NewRedactor(detector *Detector, logger *zap.Logger) *Redactor {
	return &Redactor{
		detector: detector,
		logger:   logger.Named("data_redaction"),
	}
}

// RedactText redacts every match at or above RedactThreshold and returns the
// rewritten text plus the matches that were applied. With preserveFormat the
// alphanumeric characters inside a span are replaced by redactionChar and
// punctuation is kept (123-45-6789 becomes ***-**-****); otherwise the whole
// span becomes a [REDACTED_<TYPE>] tag. Overlapping spans are collapsed before
// splicing so no region is rewritten twice.
func (r *Redactor) RedactText(text string, redactionChar string, preserveFormat bool, context string) (string, []PIIMatch) {
	matches := r.detector.Detect(text, context)
	if len(matches) == 0 {
		return text, nil
	}

	var eligible []PIIMatch
	for _, m := range matches {
		if m.Confidence >= RedactThreshold {
			eligible = append(eligible, m)
		}
	}
	if len(eligible) == 0 {
		return text, nil
	}

	spans := collapseSpans(eligible)

	redacted := text
	for i := len(spans) - 1; i >= 0; i-- {
		span := spans[i]
		var replacement string
		if preserveFormat {
			replacement = maskAlnum(text[span.start:span.end], redactionChar)
		} else {
			replacement = "[REDACTED_" + strings.ToUpper(span.piiType.String()) + "]"
		}
		redacted = redacted[:span.start] + replacement + redacted[span.end:]
	}

	types := make([]string, len(eligible))
	for i, m := range eligible {
		types[i] = m.Type.String()
	}
	r.logger.Info("text redaction completed",
		zap.Int("original_length", len(text)),
		zap.Int("redacted_length", len(redacted)),
		zap.Int("pii_instances_redacted", len(eligible)),
		zap.Strings("types_redacted", types))

	return redacted, eligible
}

// RedactMap recursively redacts string values in nested maps and slices, using
// each map key as the context hint for the strings beneath it.
func (r *Redactor) RedactMap(data map[string]any, redactionChar string, preserveFormat bool) (map[string]any, []PIIMatch) {
	var allMatches []PIIMatch
	redacted := make(map[string]any, len(data))

	for key, value := range data {
		redactedValue, matches := r.redactValue(value, key, redactionChar, preserveFormat)
		redacted[key] = redactedValue
		allMatches = append(allMatches, matches...)
	}

	return redacted, allMatches
}

func (r *Redactor) redactValue(value any, context string, redactionChar string, preserveFormat bool) (any, []PIIMatch) {
	switch v := value.(type) {
	case string:
		return r.RedactText(v, redactionChar, preserveFormat, context)
	case map[string]any:
		return r.RedactMap(v, redactionChar, preserveFormat)
	case []any:
		var matches []PIIMatch
		out := make([]any, len(v))
		for i, item := range v {
			redactedItem, itemMatches := r.redactValue(item, context, redactionChar, preserveFormat)
			out[i] = redactedItem
			matches = append(matches, itemMatches...)
		}
		return out, matches
	default:
		return value, nil
	}
}

type redactSpan struct {
	start, end int
	piiType    PIIType
	confidence float64
}

// collapseSpans merges overlapping or touching matches into disjoint spans,
// keeping the type of the highest-confidence match in each merged region.
// Input must be sorted by ascending start, which Detect guarantees.
func collapseSpans(matches []PIIMatch) []redactSpan {
	var spans []redactSpan
	for _, m := range matches {
		if len(spans) > 0 && m.Start < spans[len(spans)-1].end {
			last := &spans[len(spans)-1]
			if m.End > last.end {
				last.end = m.End
			}
			if m.Confidence > last.confidence {
				last.piiType = m.Type
				last.confidence = m.Confidence
			}
			continue
		}
		spans = append(spans, redactSpan{start: m.Start, end: m.End, piiType: m.Type, confidence: m.Confidence})
	}
	return spans
}

func maskAlnum(value string, redactionChar string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteString(redactionChar)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
