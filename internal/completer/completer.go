// Package completer provides filesystem- and job-aware tab completion for the
// interactive shell. The completion tree is rebuilt before each prompt from
// the current directory's entries and the shell's background jobs.
package completer

import (
	"os"
	"sort"
	"strconv"

	"github.com/chzyer/readline"
	ps "github.com/mitchellh/go-ps"

	"Cosh/internal/builtin"
)

// fileCommands are completed with the names in the current directory.
var fileCommands = []string{"cat", "cp", "grep", "head", "less", "ls", "mv", "sort", "tail", "vim", "wc"}

// Completer adapts the shell's environment to readline.AutoCompleter.
type Completer struct {
	jobs              builtin.JobLister
	readlineCompleter *readline.PrefixCompleter
}

// New returns a Completer suggesting kill targets from jobs, which may be nil.
func New(jobs builtin.JobLister) *Completer {
	return &Completer{jobs: jobs, readlineCompleter: readline.NewPrefixCompleter()}
}

// Update rebuilds the completion tree. "cd" completes directories, "kill"
// the pids of live background jobs, the other builtins nothing and
// fileCommands every entry of the current directory.
func (c *Completer) Update() {

	entries, _ := os.ReadDir(".")

	var dirs, files []readline.PrefixCompleterInterface
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, readline.PcItem(entry.Name()+"/"))
			files = append(files, readline.PcItem(entry.Name()+"/"))
		} else {
			files = append(files, readline.PcItem(entry.Name()))
		}
	}

	var pids []readline.PrefixCompleterInterface
	for _, pid := range c.livePIDs() {
		pids = append(pids, readline.PcItem(pid))
	}

	var items []readline.PrefixCompleterInterface
	for _, name := range builtin.Names() {
		switch name {
		case "cd":
			items = append(items, readline.PcItem(name, dirs...))
		case "kill":
			items = append(items, readline.PcItem(name, pids...))
		default:
			items = append(items, readline.PcItem(name))
		}
	}
	for _, name := range fileCommands {
		items = append(items, readline.PcItem(name, files...))
	}

	c.readlineCompleter = readline.NewPrefixCompleter(items...)

}

// Do delegates to the current completion tree. It satisfies
// readline.AutoCompleter.
func (c *Completer) Do(line []rune, pos int) ([][]rune, int) {
	return c.readlineCompleter.Do(line, pos)
}

// livePIDs returns the pids of background jobs the OS still knows about.
func (c *Completer) livePIDs() []string {

	if c.jobs == nil {
		return nil
	}

	var pids []int
	for _, job := range c.jobs.Jobs() {
		if proc, err := ps.FindProcess(job.Pid); err == nil && proc != nil {
			pids = append(pids, job.Pid)
		}
	}
	sort.Ints(pids)

	out := make([]string, len(pids))
	for i, pid := range pids {
		out[i] = strconv.Itoa(pid)
	}
	return out
}
