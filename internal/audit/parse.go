package audit

import (
	"encoding/csv"
	"strconv"
	"strings"

	"github.com/kiosklock/kiosklock/pkg/platform"
)

// Process is one row of a process listing.
type Process struct {
	PID  int
	Name string
}

// ParseListing turns raw process-lister output into processes.
//
// Linux and macOS listings are pgrep -l rows ("<pid> <name>"). Windows
// listings are tasklist /FO CSV /NH rows ("name","pid",...). Rows that do not
// carry a numeric PID, such as tasklist's "INFO: No tasks are running" line,
// are skipped.
func ParseListing(family platform.Family, raw string) []Process {
	if family == platform.FamilyWindows {
		return parseTasklistCSV(raw)
	}
	return parsePgrep(raw)
}

func parsePgrep(raw string) []Process {
	var procs []Process
	for _, line := range strings.Split(raw, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil || pid <= 0 {
			continue
		}
		procs = append(procs, Process{PID: pid, Name: strings.Join(fields[1:], " ")})
	}
	return procs
}

func parseTasklistCSV(raw string) []Process {
	var procs []Process
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r := csv.NewReader(strings.NewReader(line))
		r.FieldsPerRecord = -1
		r.LazyQuotes = true
		record, err := r.Read()
		if err != nil || len(record) < 2 {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(record[1]))
		if err != nil || pid <= 0 {
			continue
		}
		procs = append(procs, Process{PID: pid, Name: strings.TrimSpace(record[0])})
	}
	return procs
}
