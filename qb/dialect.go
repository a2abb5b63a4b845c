package qb

import (
	"fmt"
	"strings"
)

// Statements are built with ? placeholders and rebound per dialect before
// they reach the driver.

type PlaceholderFunc func(index int) string

func QuestionMark(_ int) string { return "?" }

func Dollar(index int) string { return fmt.Sprintf("$%d", index) }

// Rebind rewrites every ? in query using ph, numbering from 1.
func Rebind(query string, ph PlaceholderFunc) string {
	if ph == nil {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	idx := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteString(ph(idx))
			idx++
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}

func placeholders(n int) []string {
	output := make([]string, n)
	for i := range output {
		output[i] = "?"
	}
	return output
}
