// Package config loads qwopgym.yaml files.
package config

import (
	"os"
	"regexp"
)

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv substitutes ${VAR} with the variable's value and ${VAR:-default}
// with the default when VAR is unset or empty. Unset variables without a
// default become empty strings.
func ExpandEnv(input string) string {
	matches := envVarPattern.FindAllStringSubmatchIndex(input, -1)
	if len(matches) == 0 {
		return input
	}

	out := make([]byte, 0, len(input))
	last := 0
	for _, m := range matches {
		out = append(out, input[last:m[0]]...)
		name := input[m[2]:m[3]]
		value := os.Getenv(name)
		if value == "" && m[4] >= 0 {
			value = input[m[4]:m[5]]
		}
		out = append(out, value...)
		last = m[1]
	}
	out = append(out, input[last:]...)
	return string(out)
}
