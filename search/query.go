package search

import (
	"strconv"
	"strings"
)

const DefaultLimit = 20

// Query is a message search typed in the shell.
type Query struct {
	RawInput string
	Terms    string // full-text part, matched against message text
	With     string // optional email of the other participant
	Limit    int
}

// ParseQuery reads command-line style input.
// Example: /find dinner friday --with bob@y.com --limit 5
// Unknown flags and their value are ignored. A missing or invalid limit
// falls back to defaultLimit.
func ParseQuery(input string, defaultLimit int) Query {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	query := Query{RawInput: input, Limit: defaultLimit}

	parts := strings.Fields(input)
	var terms []string
	for i := 0; i < len(parts); i++ {
		part := parts[i]

		if strings.HasPrefix(part, "--") && i+1 < len(parts) {
			value := parts[i+1]
			switch strings.TrimPrefix(part, "--") {
			case "with":
				query.With = strings.ToLower(value)
			case "limit":
				if n, err := strconv.Atoi(value); err == nil && n > 0 {
					query.Limit = n
				}
			}
			i++
			continue
		}
		if i == 0 && strings.HasPrefix(part, "/") {
			continue
		}
		terms = append(terms, part)
	}
	query.Terms = strings.Join(terms, " ")
	return query
}
