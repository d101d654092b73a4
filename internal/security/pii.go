package security

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// PIIType identifies a category of personally identifiable information.
type PIIType string

const (
	PIITypeSSN        PIIType = "ssn"
	PIITypeEmail      PIIType = "email"
	PIITypePhone      PIIType = "phone"
	PIITypeCreditCard PIIType = "credit_card"
	PIITypeIPAddress  PIIType = "ip_address"
	PIITypeAPIKey     PIIType = "api_key"
	PIITypePassword   PIIType = "password"
	PIITypeAddress    PIIType = "address"
	PIITypeName       PIIType = "name"
	PIITypeCustom     PIIType = "custom"
)

func (t PIIType) String() string {
	return string(t)
}

// PIIMatch is a single detected PII occurrence. Offsets are byte offsets into
// the scanned text and always satisfy 0 <= Start < End <= len(text).
type PIIMatch struct {
	Type       PIIType `json:"type"`
	Value      string  `json:"value"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
	Context    string  `json:"context,omitempty"`
}

const baseConfidence = 0.80

// Detector scans text against a per-type table of compiled patterns. The
// tables are built once at construction and are read-only afterwards, so a
// single Detector is safe for concurrent use.
type Detector struct {
	logger          *zap.Logger
	patterns        map[PIIType][]*regexp.Regexp
	contextKeywords map[PIIType][]string
}

// NewDetector compiles the built-in pattern tables plus any extra patterns
// from configuration. Extra patterns are reported as PIITypeCustom; a pattern
// that fails to compile is a configuration error and aborts construction.
func NewDetector(logger *zap.Logger, customPatterns []string) (*Detector, error) {
	d := &Detector{
		logger: logger.Named("pii_detection"),
		patterns: map[PIIType][]*regexp.Regexp{
			PIITypeSSN: {
				regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
				regexp.MustCompile(`\b\d{3}\s\d{2}\s\d{4}\b`),
				regexp.MustCompile(`\b\d{9}\b`),
			},
			PIITypeEmail: {
				regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
			},
			PIITypePhone: {
				regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`),
				regexp.MustCompile(`\(\d{3}\)\s?\d{3}[-.]?\d{4}\b`),
				regexp.MustCompile(`\+1[-.]?\d{3}[-.]?\d{3}[-.]?\d{4}\b`),
			},
			PIITypeCreditCard: {
				regexp.MustCompile(`\b4[0-9]{12}(?:[0-9]{3})?\b`), // Visa
				regexp.MustCompile(`\b5[1-5][0-9]{14}\b`),         // Mastercard
				regexp.MustCompile(`\b3[47][0-9]{13}\b`),          // Amex
			},
			PIITypeIPAddress: {
				regexp.MustCompile(`\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`),
			},
			PIITypeAPIKey: {
				regexp.MustCompile(`\b[A-Za-z0-9]{32,}\b`),
				regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
				regexp.MustCompile(`Bearer\s+[A-Za-z0-9._-]+`),
			},
			PIITypePassword: {
				regexp.MustCompile(`(?i)password[\s:=]+\S+`),
				regexp.MustCompile(`(?i)pwd[\s:=]+\S+`),
				regexp.MustCompile(`(?i)pass[\s:=]+\S+`),
			},
		},
		contextKeywords: map[PIIType][]string{
			PIITypeSSN:        {"social", "security", "ssn", "tax"},
			PIITypeEmail:      {"email", "contact", "address"},
			PIITypePhone:      {"phone", "tel", "call", "mobile"},
			PIITypeCreditCard: {"card", "credit", "payment", "billing"},
			PIITypeAPIKey:     {"key", "token", "api", "secret"},
			PIITypePassword:   {"password", "pwd", "pass", "auth"},
		},
	}

	for _, pattern := range customPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid custom PII pattern %q: %w", pattern, err)
		}
		d.patterns[PIITypeCustom] = append(d.patterns[PIITypeCustom], re)
	}

	return d, nil
}

// Detect returns every pattern hit in text, sorted by ascending start offset.
// A value matched by two patterns of the same type yields two entries; callers
// that need disjoint spans must collapse them (the redactor does). Detection
// never fails: empty or malformed input simply produces no matches.
func (d *Detector) Detect(text string, context string) []PIIMatch {
	var matches []PIIMatch

	for piiType, patterns := range d.patterns {
		for _, pattern := range patterns {
			for _, loc := range pattern.FindAllStringIndex(text, -1) {
				value := text[loc[0]:loc[1]]
				matches = append(matches, PIIMatch{
					Type:       piiType,
					Value:      value,
					Start:      loc[0],
					End:        loc[1],
					Confidence: d.confidence(value, piiType, context),
					Context:    context,
				})
			}
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Start != matches[j].Start {
			return matches[i].Start < matches[j].Start
		}
		if matches[i].End != matches[j].End {
			return matches[i].End < matches[j].End
		}
		return matches[i].Type < matches[j].Type
	})

	if len(matches) > 0 {
		types := make([]string, len(matches))
		for i, m := range matches {
			types[i] = m.Type.String()
		}
		d.logger.Debug("PII detection completed",
			zap.Int("text_length", len(text)),
			zap.Int("matches_found", len(matches)),
			zap.Strings("types_detected", types))
	}

	return matches
}

func (d *Detector) confidence(value string, piiType PIIType, context string) float64 {
	confidence := baseConfidence

	if context != "" {
		contextLower := strings.ToLower(context)
		for _, keyword := range d.contextKeywords[piiType] {
			if strings.Contains(contextLower, keyword) {
				confidence += 0.15
				break
			}
		}
	}
	if confidence > 1.0 {
		confidence = 1.0
	}

	// SSNs are never issued with area number 000, 666 or 900-999.
	if piiType == PIITypeSSN {
		digits := stripNonDigits(value)
		if strings.HasPrefix(digits, "000") || strings.HasPrefix(digits, "666") || strings.HasPrefix(digits, "9") {
			confidence *= 0.5
		}
	}

	return confidence
}

func stripNonDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
