package domain

import "regexp"

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.:-]+)\s*\}\}`)

// Placeholders returns the field names referenced by a template, in order of
// first appearance. Shared by the loader (static checks) and the composer.
func Placeholders(template string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range placeholderRe.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// ExpandTemplate replaces each {{field}} with the value from lookup. The
// resolve callback receives the field name and must return its value; it can
// signal a missing field through the ok return.
func ExpandTemplate(template string, resolve func(field string) (string, bool)) (string, *string) {
	var missing *string
	out := placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		field := placeholderRe.FindStringSubmatch(m)[1]
		v, ok := resolve(field)
		if !ok && missing == nil {
			missing = &field
		}
		return v
	})
	return out, missing
}
