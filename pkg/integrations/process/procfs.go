package process

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ProcLister scans a procfs mount without spawning a process. Its output is
// in pgrep -l form so it parses like the exec lister's.
type ProcLister struct {
	Root string
}

func NewProcLister(root string) *ProcLister {
	return &ProcLister{Root: root}
}

type procEntry struct {
	pid  int
	name string
}

// List matches filter case-insensitively against each process name. A filter
// longer than the kernel's name limit is also matched against the executable
// name taken from the command line.
func (l *ProcLister) List(ctx context.Context, filter string) (string, error) {
	entries, err := os.ReadDir(l.Root)
	if err != nil {
		return "", errors.Wrap(err, "failed to read procfs")
	}

	needle := strings.ToLower(filter)
	var found []procEntry
	for _, entry := range entries {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		// processes exiting mid-scan vanish between ReadDir and ReadFile
		name, err := l.readName(pid)
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(name), needle) {
			found = append(found, procEntry{pid: pid, name: name})
			continue
		}
		// stat names are cut at the kernel's limit
		if len(needle) > commLimit {
			if full := l.readCommand(pid); full != "" && strings.Contains(strings.ToLower(full), needle) {
				found = append(found, procEntry{pid: pid, name: full})
			}
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].pid < found[j].pid })

	var b strings.Builder
	for _, p := range found {
		fmt.Fprintf(&b, "%d %s\n", p.pid, p.name)
	}
	return b.String(), nil
}

// readName extracts the command name from /proc/<pid>/stat. The name is the
// text between the first '(' and the last ')', since it may itself contain
// parentheses.
func (l *ProcLister) readName(pid int) (string, error) {
	data, err := os.ReadFile(filepath.Join(l.Root, strconv.Itoa(pid), "stat"))
	if err != nil {
		return "", err
	}
	stat := string(data)
	start := strings.Index(stat, "(")
	end := strings.LastIndex(stat, ")")
	if start == -1 || end <= start {
		return "", errors.Errorf("malformed stat for pid %d", pid)
	}
	return stat[start+1 : end], nil
}

// readCommand returns the base name of argv[0], or "" for kernel threads and
// processes that are gone.
func (l *ProcLister) readCommand(pid int) string {
	data, err := os.ReadFile(filepath.Join(l.Root, strconv.Itoa(pid), "cmdline"))
	if err != nil || len(data) == 0 {
		return ""
	}
	argv0, _, _ := strings.Cut(string(data), "\x00")
	return filepath.Base(argv0)
}
