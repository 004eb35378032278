// Package streams describes which input, output and error channels a command
// subtree runs with. A StreamSet is a small value; splitting it for a pipe or
// a background job yields two new sets and never mutates the original.
//
// Channels the engine creates (pipe ends, redirection files) are reference
// counted: every StreamSet holding one owns a reference, and the holder that
// drops the last reference closes the descriptor. Inherited channels, such as
// the shell's own stdin/stdout/stderr, are never closed.
//
// Operations that derive new sets (Clone excepted) consume the receiver: the
// caller must not use or Release it afterwards.
package streams

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
)

type channel struct {
	file  *os.File
	owned bool
	refs  atomic.Int32
}

func inherited(f *os.File) *channel {
	if f == nil {
		return nil
	}
	return &channel{file: f}
}

func owned(f *os.File) *channel {
	c := &channel{file: f, owned: true}
	c.refs.Store(1)
	return c
}

func (c *channel) retain() *channel {
	if c != nil && c.owned {
		c.refs.Add(1)
	}
	return c
}

func (c *channel) release() error {
	if c == nil || !c.owned {
		return nil
	}
	if c.refs.Add(-1) == 0 {
		return c.file.Close()
	}
	return nil
}

func (c *channel) osFile() *os.File {
	if c == nil {
		return nil
	}
	return c.file
}

// StreamSet is the triple of channels a command runs with. A nil channel is
// closed in the child.
type StreamSet struct {
	in, out, err *channel
}

// Std returns a set inheriting the calling process's standard streams.
func Std() StreamSet {
	return Inherit(os.Stdin, os.Stdout, os.Stderr)
}

// Inherit wraps caller-owned files. The set never closes them.
func Inherit(in, out, errFile *os.File) StreamSet {
	return StreamSet{in: inherited(in), out: inherited(out), err: inherited(errFile)}
}

// Clone returns a second holder of the same channels. Both sets must be released.
func (s StreamSet) Clone() StreamSet {
	return StreamSet{in: s.in.retain(), out: s.out.retain(), err: s.err.retain()}
}

// SplitForFork returns two independent holders of the same channels. No pipe
// is created.
func (s StreamSet) SplitForFork() (StreamSet, StreamSet) {
	return s, s.Clone()
}

// SplitForPipe creates an OS pipe. The left set writes into it and keeps the
// input and error channels; the right set reads from it and keeps the output
// and error channels. On error the receiver is not consumed.
func (s StreamSet) SplitForPipe() (StreamSet, StreamSet, error) {

	r, w, err := os.Pipe()
	if err != nil {
		return StreamSet{}, StreamSet{}, fmt.Errorf("failed to create pipe: %w", err)
	}

	left := StreamSet{in: s.in, out: owned(w), err: s.err}
	right := StreamSet{in: owned(r), out: s.out, err: s.err.retain()}

	return left, right, nil
}

// WithInput returns a set reading from f, which the set now owns.
func (s StreamSet) WithInput(f *os.File) StreamSet {
	_ = s.in.release()
	return StreamSet{in: owned(f), out: s.out, err: s.err}
}

// WithOutput returns a set writing to f, which the set now owns.
func (s StreamSet) WithOutput(f *os.File) StreamSet {
	_ = s.out.release()
	return StreamSet{in: s.in, out: owned(f), err: s.err}
}

// Files returns the descriptors to install as fds 0, 1 and 2 of a child.
func (s StreamSet) Files() []*os.File {
	return []*os.File{s.in.osFile(), s.out.osFile(), s.err.osFile()}
}

// Stdin returns the input channel's file, or nil.
func (s StreamSet) Stdin() *os.File { return s.in.osFile() }

// Stdout returns the output channel's file, or nil.
func (s StreamSet) Stdout() *os.File { return s.out.osFile() }

// Stderr returns a writer for diagnostics about this subtree. It discards
// everything when the set has no error channel.
func (s StreamSet) Stderr() io.Writer {
	if f := s.err.osFile(); f != nil {
		return f
	}
	return io.Discard
}

// Release drops this holder's references and closes any owned channel that
// has no other holder.
func (s StreamSet) Release() error {
	var result *multierror.Error
	for _, c := range []*channel{s.in, s.out, s.err} {
		if err := c.release(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
