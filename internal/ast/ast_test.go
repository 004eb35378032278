package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSingle_EmptyIsNil(t *testing.T) {
	assert.Equal(t, Nil{}, NewSingle())
	assert.Equal(t, Single{Args: []string{"ls", "-l"}}, NewSingle("ls", "-l"))
}

func TestNewSingle_CopiesArgs(t *testing.T) {
	args := []string{"echo", "a"}
	cmd := NewSingle(args...)
	args[1] = "b"
	assert.Equal(t, []string{"echo", "a"}, cmd.(Single).Args)
}

func TestBinary_NilChildren(t *testing.T) {
	assert.Equal(t, BinaryExpr{Op: Fork, First: NewSingle("a"), Second: Nil{}}, Background(NewSingle("a"), nil))
}

func TestString(t *testing.T) {
	cmd := Sequential(
		FileOutput{Src: Piped(NewSingle("ls"), NewSingle("wc", "-l")), Dst: "out", Append: true},
		FileInput{Src: "in", Dst: Or(NewSingle("false"), NewSingle("true"))},
	)
	assert.Equal(t, "(((ls | wc -l) >> out) ; ((false || true) < in))", cmd.String())
}

func TestFormat(t *testing.T) {
	cmd := And(
		Background(NewSingle("sleep", "1"), Nil{}),
		FileOutput{Src: NewSingle("echo", "hi"), Dst: "out.txt"},
	)

	want := "and\n" +
		"  fork\n" +
		"    single [\"sleep\" \"1\"]\n" +
		"    nil\n" +
		"  output \"out.txt\"\n" +
		"    single [\"echo\" \"hi\"]\n"

	assert.Equal(t, want, Format(cmd))
}
