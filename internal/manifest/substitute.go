package manifest

import "regexp"

var placeholderRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Substitute rewrites ${VAR} placeholders from the environment map.
// Best-effort: an unresolved placeholder is left verbatim and reported in
// the second return value so callers can log it; substitution never fails.
func Substitute(content string, env map[string]string) (string, []string) {
	var unresolved []string
	result := placeholderRe.ReplaceAllStringFunc(content, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		if value, ok := env[name]; ok {
			return value
		}
		unresolved = append(unresolved, name)
		return match
	})
	return result, unresolved
}
