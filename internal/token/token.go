// Package token defines the lexical units produced by the lexer and consumed
// by the parser: words and the fixed set of operator tokens.
package token

// Kind identifies the type of a Token.
type Kind int

const (
	Word       Kind = iota // plain text, already unescaped
	Semicolon              // ;
	Fork                   // &
	LogAnd                 // &&
	LogOr                  // ||
	Pipe                   // |
	ReadFile               // <
	WriteFile              // >
	AppendFile             // >>
	LeftParen              // (
	RightParen             // )
)

var spellings = map[Kind]string{
	Word:       "word",
	Semicolon:  ";",
	Fork:       "&",
	LogAnd:     "&&",
	LogOr:      "||",
	Pipe:       "|",
	ReadFile:   "<",
	WriteFile:  ">",
	AppendFile: ">>",
	LeftParen:  "(",
	RightParen: ")",
}

// String returns the source spelling of the kind.
func (k Kind) String() string {
	if s, ok := spellings[k]; ok {
		return s
	}
	return "unknown"
}

// IsBinaryOperator reports whether the kind combines two commands.
func (k Kind) IsBinaryOperator() bool {
	switch k {
	case Semicolon, Fork, LogAnd, LogOr, Pipe:
		return true
	}
	return false
}

// IsRedirect reports whether the kind redirects a command to or from a file.
func (k Kind) IsRedirect() bool {
	return k == ReadFile || k == WriteFile || k == AppendFile
}

// Token is a single lexical unit. Text is only meaningful for Word.
type Token struct {
	Kind Kind
	Text string
}

// NewWord returns a Word token carrying text.
func NewWord(text string) Token {
	return Token{Kind: Word, Text: text}
}

// New returns an operator token of the given kind.
func New(kind Kind) Token {
	return Token{Kind: kind}
}

// Words turns each argument into a Word token.
func Words(texts ...string) []Token {
	tokens := make([]Token, 0, len(texts))
	for _, text := range texts {
		tokens = append(tokens, NewWord(text))
	}
	return tokens
}

func (t Token) String() string {
	if t.Kind == Word {
		return t.Text
	}
	return t.Kind.String()
}
