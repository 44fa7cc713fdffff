package sigma

import "strings"

// Argument-list tokenizer for template function calls. The input is the text
// immediately following the opening parenthesis of a call; parsing stops at
// the matching closing parenthesis.

type argState int

const (
	argStart      argState = iota // before the first argument
	argNext                       // after a comma, before the next argument
	argBare                       // inside an unquoted argument
	argQuoted                     // inside a quoted argument
	argEscape                     // after a backslash inside a quoted argument
	argAfterQuote                 // after a closing quote, before comma or ')'
)

// parseArguments splits a comma-separated argument list into raw argument
// strings and returns them together with the number of bytes consumed,
// including the closing parenthesis. Quotes may be single or double, matched
// to the opening quote; a backslash inside a quoted argument passes the next
// character through verbatim. Whitespace is insignificant at argument
// boundaries but preserved inside bare arguments, whose trailing whitespace
// is trimmed. The list may be empty.
func parseArguments(s string) ([]string, int, error) {
	var (
		args  []string
		arg   strings.Builder
		quote rune
		state = argStart
	)
	for i, c := range s {
		switch state {
		case argStart, argNext:
			switch {
			case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			case c == '\'' || c == '"':
				quote = c
				state = argQuoted
			case c == ')':
				if state == argNext {
					return nil, 0, &SyntaxError{Offset: i, Char: c}
				}
				return args, i + 1, nil
			case c == ',':
				return nil, 0, &SyntaxError{Offset: i, Char: c}
			default:
				arg.WriteRune(c)
				state = argBare
			}
		case argBare:
			switch c {
			case ',':
				args = append(args, strings.TrimRight(arg.String(), " \t\r\n"))
				arg.Reset()
				state = argNext
			case ')':
				args = append(args, strings.TrimRight(arg.String(), " \t\r\n"))
				return args, i + 1, nil
			default:
				arg.WriteRune(c)
			}
		case argQuoted:
			switch c {
			case quote:
				args = append(args, arg.String())
				arg.Reset()
				state = argAfterQuote
			case '\\':
				state = argEscape
			default:
				arg.WriteRune(c)
			}
		case argEscape:
			arg.WriteRune(c)
			state = argQuoted
		case argAfterQuote:
			switch {
			case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			case c == ',':
				state = argNext
			case c == ')':
				return args, i + 1, nil
			default:
				return nil, 0, &SyntaxError{Offset: i, Char: c}
			}
		}
	}
	return nil, 0, &SyntaxError{Offset: len(s)}
}
