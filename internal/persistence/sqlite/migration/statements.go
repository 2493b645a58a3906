package migration

import (
	"fmt"
	"strings"
)

// splitStatements breaks SQL into statements on semicolons outside quoted
// text and comments. Comments are dropped, quoted text is copied unchanged.
// A quote character is escaped by doubling it, as in SQLite.
//
// Statements whose body itself contains semicolons, such as CREATE TRIGGER
// ... BEGIN ... END, are not supported.
func splitStatements(content string) ([]string, error) {
	var (
		statements []string
		current    strings.Builder
		depth      int
	)

	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for i := 0; i < len(content); i++ {
		c := content[i]
		switch {
		case c == '-' && strings.HasPrefix(content[i:], "--"):
			end := strings.IndexByte(content[i:], '\n')
			if end < 0 {
				i = len(content)
				continue
			}
			// Resume on the newline so it separates the surrounding lines.
			i += end - 1

		case c == '/' && strings.HasPrefix(content[i:], "/*"):
			end := strings.Index(content[i+2:], "*/")
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated block comment", ErrInvalidMigrationFile)
			}
			current.WriteByte(' ')
			i += end + 3

		case c == '\'' || c == '"' || c == '`':
			end := closingQuote(content, i)
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated string literal", ErrInvalidMigrationFile)
			}
			current.WriteString(content[i : end+1])
			i = end

		case c == '(':
			depth++
			current.WriteByte(c)

		case c == ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: unmatched closing parenthesis", ErrInvalidMigrationFile)
			}
			current.WriteByte(c)

		case c == ';':
			flush()

		default:
			current.WriteByte(c)
		}
	}

	if depth > 0 {
		return nil, fmt.Errorf("%w: unmatched opening parenthesis", ErrInvalidMigrationFile)
	}
	flush()

	return statements, nil
}

// closingQuote returns the index of the quote that closes the one at start,
// or -1 when the literal runs to the end of content.
func closingQuote(content string, start int) int {
	quote := content[start]
	for i := start + 1; i < len(content); i++ {
		if content[i] != quote {
			continue
		}
		if i+1 < len(content) && content[i+1] == quote {
			i++
			continue
		}
		return i
	}
	return -1
}
