package reporter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/kiosklock/kiosklock/internal/database"
	"github.com/kiosklock/kiosklock/internal/models"
	"github.com/kiosklock/kiosklock/pkg/utils"
)

// Reporter builds incident reports from the journal.
type Reporter struct {
	repo *database.Repository
	now  func() time.Time
}

func New(repo *database.Repository) *Reporter {
	return &Reporter{
		repo: repo,
		now:  time.Now,
	}
}

// GenerateReport summarizes the incidents of the given period.
func (r *Reporter) GenerateReport(periodType string) (*models.Report, error) {
	period, err := r.getPeriod(periodType)
	if err != nil {
		return nil, err
	}

	kinds, err := r.repo.SummarySince(period.Start)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get incident summary")
	}

	incidents, err := r.repo.ListSince(period.Start, 0)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list incidents")
	}

	auditErrors, err := r.repo.CountErrorsSince(period.Start)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count audit errors")
	}

	sessions := make(map[string]struct{})
	signatures := make(map[string]struct{})
	for _, inc := range incidents {
		if inc.SessionID != "" {
			sessions[inc.SessionID] = struct{}{}
		}
		if inc.Kind == models.KindRemoteAccess && inc.Signature != "" {
			signatures[inc.Signature] = struct{}{}
		}
	}

	total := 0
	for _, k := range kinds {
		total += k.Count
	}

	return &models.Report{
		Period:      *period,
		Kinds:       kinds,
		Total:       total,
		Sessions:    len(sessions),
		Signatures:  sortedKeys(signatures),
		AuditErrors: int(auditErrors),
		GeneratedAt: r.now(),
	}, nil
}

func (r *Reporter) getPeriod(periodType string) (*models.ReportPeriod, error) {
	now := r.now()
	var start, end time.Time

	switch periodType {
	case "day", "today":
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		end = start.AddDate(0, 0, 1)

	case "week":
		// weeks start on Monday
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -(weekday - 1))
		end = start.AddDate(0, 0, 7)

	case "month":
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		end = start.AddDate(0, 1, 0)

	default:
		return nil, errors.Errorf("invalid period type: %s (valid: day, week, month)", periodType)
	}

	return &models.ReportPeriod{
		Start: start,
		End:   end,
		Type:  periodType,
	}, nil
}

// FormatReportText formats the report as human-readable text.
func (r *Reporter) FormatReportText(report *models.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Incident Report - %s\n", report.Period.Type)
	fmt.Fprintf(&b, "Period: %s to %s\n",
		report.Period.Start.Format("2006-01-02 15:04"),
		report.Period.End.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Incidents: %d across %d lock sessions, %d audit errors\n\n",
		report.Total, report.Sessions, report.AuditErrors)

	if len(report.Kinds) == 0 {
		b.WriteString("No incidents recorded for this period.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%-24s %8s %18s %12s\n", "Kind", "Count", "First", "Last seen")
	b.WriteString(strings.Repeat("-", 66) + "\n")

	for _, k := range report.Kinds {
		ago := report.GeneratedAt.Sub(k.LastSeen)
		fmt.Fprintf(&b, "%-24s %8d %18s %12s\n",
			truncate(k.Kind, 24),
			k.Count,
			k.FirstSeen.Format("2006-01-02 15:04"),
			utils.FormatRounded(ago)+" ago")
	}

	if len(report.Signatures) > 0 {
		fmt.Fprintf(&b, "\nRemote access tools seen: %s\n", strings.Join(report.Signatures, ", "))
	}

	return b.String()
}

// FormatReportJSON formats the report as JSON.
func (r *Reporter) FormatReportJSON(report *models.Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal JSON")
	}
	return string(data), nil
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
