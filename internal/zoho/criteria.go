package zoho

import "strings"

var criteriaEscaper = strings.NewReplacer(`(`, `\(`, `)`, `\)`, `,`, `\,`)

// Equals builds a single "(field:equals:value)" criterion.
func Equals(field, value string) string {
	return "(" + field + ":equals:" + EscapeCriteria(value) + ")"
}

// EscapeCriteria escapes the characters that delimit search criteria.
func EscapeCriteria(value string) string {
	return criteriaEscaper.Replace(value)
}
