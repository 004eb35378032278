// Package ast defines the command tree produced by the parser and walked by
// the executor. A Command is one of Nil, Single, BinaryExpr, FileInput or
// FileOutput. Trees are built once and never mutated afterwards.
package ast

import (
	"fmt"
	"strings"
)

// Op is the operator of a BinaryExpr.
type Op int

const (
	Seq    Op = iota // a ; b
	Fork             // a & b
	Pipe             // a | b
	LogAnd           // a && b
	LogOr            // a || b
)

// String returns the operator's source spelling.
func (op Op) String() string {
	switch op {
	case Seq:
		return ";"
	case Fork:
		return "&"
	case Pipe:
		return "|"
	case LogAnd:
		return "&&"
	case LogOr:
		return "||"
	}
	return "?"
}

// name is the lower-case label used by Format.
func (op Op) name() string {
	switch op {
	case Seq:
		return "seq"
	case Fork:
		return "fork"
	case Pipe:
		return "pipe"
	case LogAnd:
		return "and"
	case LogOr:
		return "or"
	}
	return "unknown"
}

// Command is a node of the command tree.
type Command interface {
	fmt.Stringer
	command()
}

// Nil is the empty command. Executing it succeeds without starting a process.
type Nil struct{}

// Single is one program invocation. Args[0] names the executable.
type Single struct {
	Args []string
}

// BinaryExpr combines two commands with an operator.
type BinaryExpr struct {
	Op     Op
	First  Command
	Second Command
}

// FileInput runs Dst with its standard input read from the file Src.
type FileInput struct {
	Src string
	Dst Command
}

// FileOutput runs Src with its standard output written to the file Dst,
// truncating it unless Append is set.
type FileOutput struct {
	Src    Command
	Dst    string
	Append bool
}

func (Nil) command()        {}
func (Single) command()     {}
func (BinaryExpr) command() {}
func (FileInput) command()  {}
func (FileOutput) command() {}

// NewSingle returns a Single for args, or Nil when args is empty.
func NewSingle(args ...string) Command {
	if len(args) == 0 {
		return Nil{}
	}
	return Single{Args: append([]string(nil), args...)}
}

// Binary returns op applied to first and second. A nil child is treated as Nil.
func Binary(op Op, first, second Command) Command {
	if first == nil {
		first = Nil{}
	}
	if second == nil {
		second = Nil{}
	}
	return BinaryExpr{Op: op, First: first, Second: second}
}

// Sequential is shorthand for Binary(Seq, first, second).
func Sequential(first, second Command) Command { return Binary(Seq, first, second) }

// Background is shorthand for Binary(Fork, first, second).
func Background(first, second Command) Command { return Binary(Fork, first, second) }

// Piped is shorthand for Binary(Pipe, first, second).
func Piped(first, second Command) Command { return Binary(Pipe, first, second) }

// And is shorthand for Binary(LogAnd, first, second).
func And(first, second Command) Command { return Binary(LogAnd, first, second) }

// Or is shorthand for Binary(LogOr, first, second).
func Or(first, second Command) Command { return Binary(LogOr, first, second) }

func (Nil) String() string {
	return ""
}

func (c Single) String() string {
	return strings.Join(c.Args, " ")
}

func (c BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", c.First, c.Op, c.Second)
}

func (c FileInput) String() string {
	return fmt.Sprintf("(%s < %s)", c.Dst, c.Src)
}

func (c FileOutput) String() string {
	op := ">"
	if c.Append {
		op = ">>"
	}
	return fmt.Sprintf("(%s %s %s)", c.Src, op, c.Dst)
}

// Format renders cmd as an indented tree, one node per line.
func Format(cmd Command) string {
	var b strings.Builder
	format(&b, cmd, 0)
	return b.String()
}

func format(b *strings.Builder, cmd Command, depth int) {

	b.WriteString(strings.Repeat("  ", depth))

	switch c := cmd.(type) {
	case Single:
		fmt.Fprintf(b, "single %q\n", c.Args)
	case BinaryExpr:
		b.WriteString(c.Op.name() + "\n")
		format(b, c.First, depth+1)
		format(b, c.Second, depth+1)
	case FileInput:
		fmt.Fprintf(b, "input %q\n", c.Src)
		format(b, c.Dst, depth+1)
	case FileOutput:
		label := "output"
		if c.Append {
			label = "append"
		}
		fmt.Fprintf(b, "%s %q\n", label, c.Dst)
		format(b, c.Src, depth+1)
	default:
		b.WriteString("nil\n")
	}

}
