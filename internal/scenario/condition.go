package scenario

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/avgate/avgate/internal/device"
	"github.com/avgate/avgate/internal/infrastructure/logging"
)

// Condition language: a deliberately non-Turing-complete subset.
//
//	device.<attr> == <literal>
//	device.<attr> != <literal>
//
// Literals are quoted strings, true/false, integers, or floats. Anything
// outside this grammar logs a warning and evaluates permissively to true so
// a typo does not silently suppress a valid sequence step. A failure while
// evaluating a well-formed condition evaluates to false (safe-skip).
var conditionPattern = regexp.MustCompile(`^\s*device\.([A-Za-z_][A-Za-z0-9_]*)\s*(==|!=)\s*(.+?)\s*$`)

// evaluateCondition checks a step condition against a device's state.
// An empty condition is always true.
func evaluateCondition(cond string, st device.State, logger *logging.Logger) bool {
	if strings.TrimSpace(cond) == "" {
		return true
	}

	match := conditionPattern.FindStringSubmatch(cond)
	if match == nil {
		logger.Warn("Unsupported condition form, treating as true", "condition", cond)
		return true
	}

	attr, op, rawLiteral := match[1], match[2], match[3]

	literal, ok := parseLiteral(rawLiteral)
	if !ok {
		logger.Warn("Unsupported condition literal, treating as true", "condition", cond)
		return true
	}

	if st == nil {
		return false
	}

	equal := literalEquals(st[attr], literal)
	if op == "!=" {
		return !equal
	}
	return equal
}

// parseLiteral decodes the right-hand side of a condition.
func parseLiteral(raw string) (any, bool) {
	if len(raw) >= 2 {
		if (raw[0] == '\'' && raw[len(raw)-1] == '\'') || (raw[0] == '"' && raw[len(raw)-1] == '"') {
			return raw[1 : len(raw)-1], true
		}
	}
	switch raw {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return float64(n), true
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f, true
	}
	return nil, false
}

// literalEquals compares a state value against a condition literal,
// normalising numeric types.
func literalEquals(value any, literal any) bool {
	if lf, ok := literal.(float64); ok {
		switch v := value.(type) {
		case float64:
			return v == lf
		case int:
			return float64(v) == lf
		case int64:
			return float64(v) == lf
		}
		return false
	}
	return value == literal
}
