package device

import (
	"fmt"
	"strconv"
	"strings"
)

// ResolveAndValidate checks provided parameters against a command's
// parameter definitions.
//
// Coercion rules: strings parse to the declared type ("1" → 1,
// "true" → true, "42.5" → 42.5); numerics convert between integer and
// float shapes. Range parameters are bounds-checked against min/max.
// Missing required parameters fail; missing optional parameters take their
// default when one is declared.
//
// Parameters:
//   - defs: Ordered parameter definitions from the command config
//   - provided: Caller-supplied values (may be nil)
//
// Returns:
//   - map[string]any: Resolved values, keys exactly the accepted parameters
//   - error: *ParamError describing the first failure
func ResolveAndValidate(defs []ParamDef, provided map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(defs))

	for _, def := range defs {
		raw, present := provided[def.Name]

		if !present {
			if def.Required {
				return nil, &ParamError{Name: def.Name, Reason: "required parameter missing"}
			}
			if def.Default != nil {
				value, err := coerce(def, def.Default)
				if err != nil {
					return nil, err
				}
				resolved[def.Name] = value
			}
			continue
		}

		value, err := coerce(def, raw)
		if err != nil {
			return nil, err
		}

		if def.Type == ParamRange {
			if err := checkRange(def, value); err != nil {
				return nil, err
			}
		}

		resolved[def.Name] = value
	}

	return resolved, nil
}

// coerce converts a raw value to the parameter's declared type.
func coerce(def ParamDef, raw any) (any, error) {
	switch def.Type {
	case ParamString:
		return coerceString(raw), nil
	case ParamBoolean:
		return coerceBool(def.Name, raw)
	case ParamInteger:
		return coerceInt(def.Name, raw)
	case ParamFloat, ParamRange:
		return coerceFloat(def.Name, raw)
	default:
		return nil, &ParamError{Name: def.Name, Reason: fmt.Sprintf("unsupported type %q", def.Type)}
	}
}

func coerceString(raw any) string {
	if s, ok := raw.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", raw)
}

func coerceBool(name string, raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "on", "yes":
			return true, nil
		case "0", "false", "off", "no":
			return false, nil
		}
		return false, &ParamError{Name: name, Reason: fmt.Sprintf("cannot parse %q as boolean", v)}
	case float64:
		return v != 0, nil
	case int:
		return v != 0, nil
	}
	return false, &ParamError{Name: name, Reason: fmt.Sprintf("cannot convert %T to boolean", raw)}
}

func coerceInt(name string, raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, &ParamError{Name: name, Reason: fmt.Sprintf("%v is not an integer", v)}
		}
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, &ParamError{Name: name, Reason: fmt.Sprintf("cannot parse %q as integer", v)}
		}
		return n, nil
	}
	return 0, &ParamError{Name: name, Reason: fmt.Sprintf("cannot convert %T to integer", raw)}
}

func coerceFloat(name string, raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, &ParamError{Name: name, Reason: fmt.Sprintf("cannot parse %q as number", v)}
		}
		return f, nil
	}
	return 0, &ParamError{Name: name, Reason: fmt.Sprintf("cannot convert %T to number", raw)}
}

// checkRange verifies a range parameter falls inside its declared bounds.
func checkRange(def ParamDef, value any) error {
	f, ok := value.(float64)
	if !ok {
		return &ParamError{Name: def.Name, Reason: "range value is not numeric"}
	}
	if def.Min != nil && f < *def.Min {
		return &ParamError{Name: def.Name, Reason: fmt.Sprintf("%v below minimum %v", f, *def.Min)}
	}
	if def.Max != nil && f > *def.Max {
		return &ParamError{Name: def.Name, Reason: fmt.Sprintf("%v above maximum %v", f, *def.Max)}
	}
	return nil
}
