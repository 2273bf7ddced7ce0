package pipeline

import "strings"

// Tokenize splits a line into shell words. A quote character (" or ')
// opens a literal span closed by the same character; quote characters are
// stripped, and whitespace inside a span does not end the word. An
// unterminated span runs to the end of the line. Empty words are dropped.
// Two '>' characters that directly follow a word (after optional
// whitespace) become a single ">>" token.
func Tokenize(line string) []string {
	var tokens []string
	var buf strings.Builder
	i, n := 0, len(line)

	for i < n {
		i = skipSpace(line, i)
		if i >= n {
			break
		}

		buf.Reset()
		var quote byte
	scan:
		for ; i < n; i++ {
			c := line[i]
			switch {
			case quote == 0 && (c == '"' || c == '\''):
				quote = c
			case quote != 0 && c == quote:
				quote = 0
			case quote == 0 && isSpace(c):
				break scan
			default:
				buf.WriteByte(c)
			}
		}
		if buf.Len() > 0 {
			tokens = append(tokens, buf.String())
		}

		i = skipSpace(line, i)
		if i+1 < n && line[i] == '>' && line[i+1] == '>' {
			tokens = append(tokens, OpRedirectAppend)
			i += 2
		}
	}
	return tokens
}

func skipSpace(s string, i int) int {
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	return i
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}
