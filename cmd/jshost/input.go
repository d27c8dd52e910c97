package main

// needsMoreInput reports whether src has unclosed brackets, ignoring
// brackets inside string literals. An unmatched closer ends the input so
// the engine reports the syntax error.
func needsMoreInput(src string) bool {
	balance := 0
	var quote rune
	escaped := false
	for _, c := range src {
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '(', '[', '{':
			balance++
		case ')', ']', '}':
			balance--
			if balance < 0 {
				return false
			}
		}
	}
	return balance > 0 || quote == '`'
}
