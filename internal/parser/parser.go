// Package parser turns a token sequence into a command tree. It is a single
// left-to-right shift/reduce pass over an explicit symbol stack. All binary
// operators bind equally and accumulate to the left, so `a ; b & c` parses as
// `(a ; b) & c`; parentheses are the only way to regroup. Redirections bind to
// the operand directly on their left; when several follow one operand the last
// of each direction wins, so `a > f > g` writes to g.
package parser

import (
	"errors"
	"fmt"

	"Cosh/internal/ast"
	"Cosh/internal/token"
)

var (
	// ErrExtraRightParen is returned for a ")" with no open "(".
	ErrExtraRightParen = errors.New("there was an extra right parenthesis")
	// ErrMissingRightParen is returned when input ends inside an open "(".
	ErrMissingRightParen = errors.New("there was a missing right parenthesis")
	// ErrMissingRedirectTarget is returned when a redirection is not followed by a file name.
	ErrMissingRedirectTarget = errors.New("redirection is missing a file name")
	// ErrMissingOperator is returned when a command directly follows a completed command.
	ErrMissingOperator = errors.New("missing operator between commands")
)

// SyntaxError reports where in the token sequence parsing failed.
type SyntaxError struct {
	Err   error // one of the Err* sentinels
	Index int   // index of the offending token, len(tokens) at end of input
	Token string
}

func (e *SyntaxError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("syntax error at end of input: %v", e.Err)
	}
	return fmt.Sprintf("syntax error near %q: %v", e.Token, e.Err)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

type symbolKind int

const (
	symText     symbolKind = iota // a word waiting to be gathered into a Single
	symOperator                   // a binary operator holding its left operand
	symRedirect                   // a redirection holding its operand, waiting for a file name
	symCommand                    // a completed command
	symScope                      // an open parenthesis
)

type symbol struct {
	kind     symbolKind
	text     string
	command  ast.Command
	op       ast.Op
	redirect token.Kind
	layers   int // redirections applied to the operand of a command
}

type parser struct {
	tokens []token.Token
	stack  []symbol
	pos    int
}

// Parse converts tokens into a command tree. Empty input yields ast.Nil.
// On error no command is returned and the error is a *SyntaxError.
func Parse(tokens []token.Token) (ast.Command, error) {
	p := &parser{tokens: tokens}
	return p.parse()
}

func (p *parser) parse() (ast.Command, error) {

	for p.pos = 0; p.pos < len(p.tokens); p.pos++ {

		tok := p.tokens[p.pos]

		var err error
		switch {
		case tok.Kind == token.Word:
			err = p.shiftWord(tok.Text)
		case tok.Kind.IsBinaryOperator():
			err = p.shiftOperator(binaryOp(tok.Kind))
		case tok.Kind.IsRedirect():
			err = p.shiftRedirect(tok.Kind)
		case tok.Kind == token.LeftParen:
			err = p.shiftScope()
		case tok.Kind == token.RightParen:
			err = p.closeScope()
		default:
			err = p.fail(fmt.Errorf("unknown token kind %d", tok.Kind))
		}
		if err != nil {
			return nil, err
		}

	}

	cmd, err := p.reduce()
	if err != nil {
		return nil, err
	}

	if len(p.stack) > 0 {
		return nil, p.fail(ErrMissingRightParen)
	}

	return cmd, nil
}

func (p *parser) shiftWord(text string) error {

	top, ok := p.peek()
	switch {
	case ok && top.kind == symRedirect:
		p.pop()
		p.push(symbol{
			kind:    symCommand,
			command: redirected(top.command, top.layers, top.redirect, text),
			layers:  top.layers + 1,
		})
		return nil
	case ok && top.kind == symCommand:
		return p.fail(ErrMissingOperator)
	}

	p.push(symbol{kind: symText, text: text})
	return nil
}

// shiftOperator reduces the current scope into the operator's left operand.
func (p *parser) shiftOperator(op ast.Op) error {
	left, err := p.reduce()
	if err != nil {
		return err
	}
	p.push(symbol{kind: symOperator, command: left, op: op})
	return nil
}

// shiftRedirect takes only the operand directly below it: the pending words
// or the last completed command. Pending binary operators are left alone.
func (p *parser) shiftRedirect(kind token.Kind) error {

	var operand ast.Command = ast.Nil{}
	layers := 0

	if top, ok := p.peek(); ok {
		switch top.kind {
		case symText:
			operand = p.reduceSingle()
		case symCommand:
			p.pop()
			operand = top.command
			layers = top.layers
		case symRedirect:
			return p.fail(ErrMissingRedirectTarget)
		}
	}

	p.push(symbol{kind: symRedirect, command: operand, redirect: kind, layers: layers})
	return nil
}

func (p *parser) shiftScope() error {

	if top, ok := p.peek(); ok {
		switch top.kind {
		case symText, symCommand:
			return p.fail(ErrMissingOperator)
		case symRedirect:
			return p.fail(ErrMissingRedirectTarget)
		}
	}

	p.push(symbol{kind: symScope})
	return nil
}

func (p *parser) closeScope() error {

	cmd, err := p.reduce()
	if err != nil {
		return err
	}

	top, ok := p.pop()
	if !ok || top.kind != symScope {
		return p.fail(ErrExtraRightParen)
	}

	p.push(symbol{kind: symCommand, command: cmd})
	return nil
}

// reduce folds everything above the nearest scope marker (or the whole
// stack) into one command. The scope marker itself stays on the stack.
func (p *parser) reduce() (ast.Command, error) {

	for {

		top, ok := p.peek()
		if !ok {
			return ast.Nil{}, nil
		}

		switch top.kind {
		case symText:
			p.push(symbol{kind: symCommand, command: p.reduceSingle()})

		case symOperator:
			p.pop()
			p.push(symbol{kind: symCommand, command: ast.Binary(top.op, top.command, ast.Nil{})})

		case symScope:
			return ast.Nil{}, nil

		case symRedirect:
			return nil, p.fail(ErrMissingRedirectTarget)

		case symCommand:
			p.pop()

			below, ok := p.peek()
			if !ok || below.kind == symScope {
				return top.command, nil
			}
			if below.kind != symOperator {
				return nil, p.fail(ErrMissingOperator)
			}

			p.pop()
			p.push(symbol{kind: symCommand, command: ast.Binary(below.op, below.command, top.command)})
		}

	}

}

// reduceSingle pops the run of text symbols on top of the stack into a Single.
func (p *parser) reduceSingle() ast.Command {

	start := len(p.stack)
	for start > 0 && p.stack[start-1].kind == symText {
		start--
	}

	args := make([]string, 0, len(p.stack)-start)
	for _, sym := range p.stack[start:] {
		args = append(args, sym.text)
	}
	p.stack = p.stack[:start]

	return ast.NewSingle(args...)
}

func (p *parser) push(sym symbol) {
	p.stack = append(p.stack, sym)
}

func (p *parser) pop() (symbol, bool) {
	sym, ok := p.peek()
	if ok {
		p.stack = p.stack[:len(p.stack)-1]
	}
	return sym, ok
}

func (p *parser) peek() (symbol, bool) {
	if len(p.stack) == 0 {
		return symbol{}, false
	}
	return p.stack[len(p.stack)-1], true
}

func (p *parser) fail(err error) error {
	syntaxErr := &SyntaxError{Err: err, Index: p.pos}
	if p.pos < len(p.tokens) {
		syntaxErr.Token = p.tokens[p.pos].String()
	}
	return syntaxErr
}

func binaryOp(kind token.Kind) ast.Op {
	switch kind {
	case token.Fork:
		return ast.Fork
	case token.Pipe:
		return ast.Pipe
	case token.LogAnd:
		return ast.LogAnd
	case token.LogOr:
		return ast.LogOr
	default:
		return ast.Seq
	}
}

// redirected applies a redirection to operand. The executor lets an inner
// redirection override an outer one, so a redirection that follows earlier
// ones on the same operand is placed below those layers, next to the command.
func redirected(operand ast.Command, layers int, kind token.Kind, path string) ast.Command {

	if layers > 0 {
		switch c := operand.(type) {
		case ast.FileInput:
			c.Dst = redirected(c.Dst, layers-1, kind, path)
			return c
		case ast.FileOutput:
			c.Src = redirected(c.Src, layers-1, kind, path)
			return c
		}
	}

	switch kind {
	case token.ReadFile:
		return ast.FileInput{Src: path, Dst: operand}
	case token.AppendFile:
		return ast.FileOutput{Src: operand, Dst: path, Append: true}
	default:
		return ast.FileOutput{Src: operand, Dst: path}
	}
}
