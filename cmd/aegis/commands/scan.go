package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aegisgate/aegis/internal/security"
)

func readInput(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

// NewScanCommand scans text for PII and prints the findings.
func NewScanCommand() *cobra.Command {
	var outputJSON bool
	var patterns []string

	cmd := &cobra.Command{
		Use:   "scan [text]",
		Short: "Scan text for PII",
		Long:  "Scan the given text (or stdin) for PII and print each finding with its type and confidence.",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(args)
			if err != nil {
				return err
			}

			detector, err := security.NewDetector(zap.NewNop(), patterns)
			if err != nil {
				return err
			}

			matches := detector.Detect(text, "")
			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(matches)
			}

			if len(matches) == 0 {
				fmt.Println("No PII detected")
				return nil
			}
			for _, m := range matches {
				fmt.Printf("%-12s %-24q confidence=%.2f at [%d:%d]\n",
					m.Type, m.Value, m.Confidence, m.Start, m.End)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "output findings as JSON")
	cmd.Flags().StringSliceVar(&patterns, "pattern", nil, "additional regex patterns to scan for")
	return cmd
}

// NewRedactCommand redacts PII from text and prints the result.
func NewRedactCommand() *cobra.Command {
	var redactionChar string
	var preserveFormat bool
	var patterns []string

	cmd := &cobra.Command{
		Use:   "redact [text]",
		Short: "Redact PII from text",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(args)
			if err != nil {
				return err
			}

			detector, err := security.NewDetector(zap.NewNop(), patterns)
			if err != nil {
				return err
			}
			redactor := security.NewRedactor(detector, zap.NewNop())

			redacted, matches := redactor.RedactText(text, redactionChar, preserveFormat, "")
			fmt.Println(redacted)
			if len(matches) > 0 {
				fmt.Fprintf(os.Stderr, "redacted %d finding(s)\n", len(matches))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&redactionChar, "char", "*", "redaction character")
	cmd.Flags().BoolVar(&preserveFormat, "preserve-format", true, "keep separators and length of redacted values")
	cmd.Flags().StringSliceVar(&patterns, "pattern", nil, "additional regex patterns to scan for")
	return cmd
}
