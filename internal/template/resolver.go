package template

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"jobshell.dev/internal/config"
)

// shellQuote single-quotes a string for safe shell interpolation.
// Embedded single quotes are escaped using the '\'' technique.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "'\\''") + "'"
}

// ResolveParameters merges caller-supplied values with the job's declared
// parameters. Defaults fill in missing optional values; a missing required
// parameter is an error. Undeclared values are passed through.
func ResolveParameters(defs map[string]config.Param, given map[string]interface{}) (map[string]interface{}, error) {
	params := make(map[string]interface{}, len(defs)+len(given))
	for k, v := range given {
		params[k] = v
	}

	var missing []string
	for name, def := range defs {
		if _, ok := params[name]; ok {
			continue
		}
		switch {
		case def.Default != nil:
			params[name] = *def.Default
		case def.Required:
			missing = append(missing, name)
		default:
			params[name] = ""
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing required parameters: %s", strings.Join(missing, ", "))
	}
	return params, nil
}

// SubstituteParameters substitutes parameters in a command template
// Uses standard delimiters {{ and }} for template actions
// Fails if required parameters are missing (strict mode)
func SubstituteParameters(command string, params map[string]interface{}) (string, error) {
	tmpl, err := template.New("command").
		Funcs(template.FuncMap{"shellQuote": shellQuote}).
		Option("missingkey=error").
		Parse(command)
	if err != nil {
		return "", fmt.Errorf("parse command template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("execute command template: %w", err)
	}

	return buf.String(), nil
}

// SubstituteArgv substitutes parameters in each element of an argv list.
// Elements are never re-split, so a value containing spaces stays one argument.
func SubstituteArgv(argv []string, params map[string]interface{}) ([]string, error) {
	out := make([]string, len(argv))
	for i, arg := range argv {
		s, err := SubstituteParameters(arg, params)
		if err != nil {
			return nil, fmt.Errorf("argv[%d]: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}
