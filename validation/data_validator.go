// Package validation checks and parses raw request input for the cycle tracker API.
// Every rejection wraps entities.ErrInvalidParameter.
package validation

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/giygas/cycletracker/aggregation"
	"github.com/giygas/cycletracker/entities"
	"github.com/giygas/cycletracker/interfaces"
	"github.com/google/uuid"
)

const (
	minInputLength = 2
	maxInputLength = 80
	maxInputWords  = 8
	maxNotesLength = 500
	minStepHours   = 0.25
	maxStepHours   = 168
)

// Pre-compiled regex patterns for performance optimization
// Compiled once at package initialization and reused for all validations
var (
	// Input validation: letters (any script), digits, spaces and the punctuation found in substance names
	inputRegex = regexp.MustCompile(`^[\p{L}\p{N}\s\-\.\+'()/,%]+$`)

	// Dangerous patterns as strings (faster than regex for simple substring matching)
	dangerousPatterns = []string{
		"<script", "</script>", "javascript:", "vbscript:", "onload=", "onerror=",
		"onclick=", "onmouseover=", "onfocus=", "onblur=", "onchange=", "onsubmit=",
		"eval(", "expression(", "url(", "import ", "@import", "binding(", "behavior(",
		// SQL injection patterns
		"' or ", "\" or ", "union select", "drop table", "delete from", "insert into",
		"update set", "--", "/*", "*/", "xp_", "sp_", "exec(", "execute(",
		// Command injection patterns
		"; ", "| ", "& ", "`", "$(", "${",
		// Path traversal patterns
		"../", "..\\", "%2e%2e", "file://",
		// NoSQL injection patterns
		"{$ne:", "{$gt:", "{$where:", "{$or:", "{$regex:", "{$expr:",
	}

	// Notes are free text, so only markup and script injection is refused
	dangerousNotesPatterns = []string{
		"<script", "</script>", "javascript:", "vbscript:", "onload=", "onerror=", "<iframe", "<object",
	}

	// Accepted date-only and date-time layouts, tried in order
	timeLayouts = []string{time.RFC3339, "2006-01-02T15:04", time.DateOnly}
)

// Compile-time check to ensure DataValidatorImpl implements DataValidator
var _ interfaces.DataValidator = (*DataValidatorImpl)(nil)

// DataValidatorImpl implements the interfaces.DataValidator interface
type DataValidatorImpl struct{}

// NewDataValidator creates a new data validator
func NewDataValidator() interfaces.DataValidator {
	return &DataValidatorImpl{}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), entities.ErrInvalidParameter)
}

// ValidateInput validates search strings and names with enhanced security
func (v *DataValidatorImpl) ValidateInput(input string) error {
	if strings.TrimSpace(input) == "" {
		return invalid("input cannot be empty")
	}

	if !utf8.ValidString(input) {
		return invalid("input is not valid UTF-8")
	}

	length := utf8.RuneCountInString(input)
	if length < minInputLength {
		return invalid("input too short: minimum %d characters", minInputLength)
	}
	if length > maxInputLength {
		return invalid("input too long: maximum %d characters", maxInputLength)
	}

	// Word count validation to prevent DoS attacks with many short words
	if words := strings.Fields(input); len(words) > maxInputWords {
		return invalid("input too complex: maximum %d words allowed", maxInputWords)
	}

	lowerInput := strings.ToLower(input)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lowerInput, pattern) {
			return invalid("input contains potentially dangerous content")
		}
	}

	if !inputRegex.MatchString(input) {
		return invalid("input contains invalid characters. Only letters, numbers, spaces and - . + ' ( ) / , %% are allowed")
	}

	if v.hasExcessiveRepetition(input) {
		return invalid("input contains excessive character repetition")
	}

	return nil
}

// ValidateNotes accepts empty notes. Otherwise notes must be valid UTF-8 text without
// control characters (newlines and tabs excepted) or script markup.
func (v *DataValidatorImpl) ValidateNotes(notes string) error {
	if notes == "" {
		return nil
	}
	if !utf8.ValidString(notes) {
		return invalid("notes are not valid UTF-8")
	}
	if n := utf8.RuneCountInString(notes); n > maxNotesLength {
		return invalid("notes too long: %d characters, maximum %d", n, maxNotesLength)
	}
	for _, r := range notes {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return invalid("notes contain control characters")
		}
	}

	lower := strings.ToLower(notes)
	for _, pattern := range dangerousNotesPatterns {
		if strings.Contains(lower, pattern) {
			return invalid("notes contain potentially dangerous content")
		}
	}
	return nil
}

// ValidateUUID parses an identity. The nil UUID is rejected.
func (v *DataValidatorImpl) ValidateUUID(input string) (uuid.UUID, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return uuid.Nil, invalid("id cannot be empty")
	}
	if len(input) != len(trimmed) {
		return uuid.Nil, invalid("id contains whitespace")
	}

	id, err := uuid.Parse(trimmed)
	if err != nil {
		return uuid.Nil, invalid("invalid id %q", input)
	}
	if id == uuid.Nil {
		return uuid.Nil, invalid("id cannot be the nil UUID")
	}
	return id, nil
}

// ValidateSite accepts the enumerated sites only (case-insensitive). Stored documents
// decode unknown sites to "other"; request input is stricter.
func (v *DataValidatorImpl) ValidateSite(input string) (entities.Site, error) {
	if strings.TrimSpace(input) == "" {
		return "", invalid("site cannot be empty")
	}
	if !entities.IsKnownSite(input) {
		names := make([]string, len(entities.Sites))
		for i, s := range entities.Sites {
			names[i] = string(s)
		}
		return "", invalid("unknown site %q, expected one of %s", input, strings.Join(names, ", "))
	}
	return entities.ParseSite(input), nil
}

// ValidateDose parses a dose in mg. It must be a finite number above zero.
func (v *DataValidatorImpl) ValidateDose(input string) (float64, error) {
	dose, err := parsePositive(input, "dose")
	if err != nil {
		return 0, err
	}
	return dose, nil
}

// ValidateTime parses an RFC 3339 timestamp, a minute-precision local form or a bare date.
// Empty input yields fallback.
func (v *DataValidatorImpl) ValidateTime(input string, fallback time.Time) (time.Time, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return fallback, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, nil
		}
	}
	return time.Time{}, invalid("invalid time %q, expected RFC 3339 (2006-01-02T15:04:05Z07:00) or 2006-01-02", input)
}

// ValidateStep parses a series step in hours, between a quarter hour and one week.
// Empty input yields fallback.
func (v *DataValidatorImpl) ValidateStep(input string, fallback float64) (float64, error) {
	if strings.TrimSpace(input) == "" {
		return fallback, nil
	}
	step, err := parsePositive(input, "step")
	if err != nil {
		return 0, err
	}
	if step < minStepHours {
		return 0, invalid("step too small: minimum %g hours", minStepHours)
	}
	if step > maxStepHours {
		return 0, invalid("step too large: maximum %d hours", maxStepHours)
	}
	return step, nil
}

// ValidateTimeRange parses day, week, month or all. Empty input yields week.
func (v *DataValidatorImpl) ValidateTimeRange(input string) (aggregation.TimeRange, error) {
	return aggregation.ParseTimeRange(input)
}

func parsePositive(input, name string) (float64, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return 0, invalid("%s cannot be empty", name)
	}
	n, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, invalid("%s must be a number", name)
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, invalid("%s must be finite", name)
	}
	if n <= 0 {
		return 0, invalid("%s must be positive, got %v", name, n)
	}
	return n, nil
}

// hasExcessiveRepetition checks for potential DoS patterns with excessive character repetition
func (v *DataValidatorImpl) hasExcessiveRepetition(input string) bool {
	// Check for the same character repeated more than 10 times consecutively
	for i := 0; i < len(input)-10; i++ {
		allSame := true
		for j := 1; j <= 10; j++ {
			if input[i] != input[i+j] {
				allSame = false
				break
			}
		}
		if allSame {
			return true
		}
	}
	return false
}
