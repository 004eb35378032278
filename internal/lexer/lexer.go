// Package lexer splits a raw command line into tokens. It recognizes the
// operator characters ; & && | || < > >> ( ), backslash escapes and single and
// double quotes. Quoting only groups text into a word; no expansion of any
// kind is performed.
package lexer

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"Cosh/internal/token"
)

var (
	// ErrTrailingBackslash is returned when the line ends with an unescaped backslash.
	ErrTrailingBackslash = errors.New("trailing backslash")
	// ErrUnterminatedQuote is returned when a quoted section is never closed.
	ErrUnterminatedQuote = errors.New("unterminated quote")
)

// Lex converts line into a token sequence. Bytes that are not valid UTF-8
// are copied into words unchanged.
func Lex(line string) ([]token.Token, error) {

	var tokens []token.Token
	var word strings.Builder
	inWord := false

	flush := func() {
		if inWord {
			tokens = append(tokens, token.NewWord(word.String()))
			word.Reset()
			inWord = false
		}
	}

	sc := &scanner{line: line}

	for !sc.done() {

		r, raw := sc.next()

		switch {
		case unicode.IsSpace(r):
			flush()

		case r == '\\':
			if sc.done() {
				return nil, ErrTrailingBackslash
			}
			_, escaped := sc.next()
			word.WriteString(escaped)
			inWord = true

		case r == '\'' || r == '"':
			if err := readQuoted(sc, r, &word); err != nil {
				return nil, err
			}
			inWord = true

		case isOperator(r):
			flush()
			tokens = append(tokens, token.New(operator(sc, r)))

		default:
			word.WriteString(raw)
			inWord = true
		}

	}

	flush()

	return tokens, nil
}

// scanner walks a line one character at a time, keeping the source bytes of
// each character so that invalid UTF-8 survives lexing.
type scanner struct {
	line string
	pos  int
}

func (s *scanner) done() bool {
	return s.pos >= len(s.line)
}

// next returns the character at the current position and its source bytes.
// An invalid byte is returned as utf8.RuneError with that single byte.
func (s *scanner) next() (rune, string) {
	r, size := utf8.DecodeRuneInString(s.line[s.pos:])
	raw := s.line[s.pos : s.pos+size]
	s.pos += size
	return r, raw
}

// peek returns the next character without consuming it, or 0 at the end.
func (s *scanner) peek() rune {
	if s.done() {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(s.line[s.pos:])
	return r
}

// readQuoted copies the rest of a section opened by quote into word and
// consumes the closing quote. Inside double quotes a backslash only escapes
// another backslash or a double quote.
func readQuoted(sc *scanner, quote rune, word *strings.Builder) error {

	for !sc.done() {
		r, raw := sc.next()
		switch {
		case r == quote:
			return nil
		case quote == '"' && r == '\\' && (sc.peek() == '"' || sc.peek() == '\\'):
			_, escaped := sc.next()
			word.WriteString(escaped)
		default:
			word.WriteString(raw)
		}
	}

	return fmt.Errorf("%w: %c", ErrUnterminatedQuote, quote)
}

func isOperator(r rune) bool {
	return strings.ContainsRune(";&|<>()", r)
}

// operator returns the kind of the operator starting with r, consuming its
// second character for the two-character operators.
func operator(sc *scanner, r rune) token.Kind {

	next := sc.peek()

	switch r {
	case ';':
		return token.Semicolon
	case '&':
		if next == '&' {
			sc.next()
			return token.LogAnd
		}
		return token.Fork
	case '|':
		if next == '|' {
			sc.next()
			return token.LogOr
		}
		return token.Pipe
	case '<':
		return token.ReadFile
	case '>':
		if next == '>' {
			sc.next()
			return token.AppendFile
		}
		return token.WriteFile
	case '(':
		return token.LeftParen
	default:
		return token.RightParen
	}
}
