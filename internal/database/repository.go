package database

import (
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/kiosklock/kiosklock/internal/models"
)

// Repository is the incident journal.
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Create inserts an incident. Kinds and signatures are stored lower case.
func (r *Repository) Create(incident *models.Incident) error {
	incident.Kind = strings.ToLower(incident.Kind)
	incident.Signature = strings.ToLower(incident.Signature)
	if incident.Timestamp.IsZero() {
		incident.Timestamp = time.Now()
	}
	if err := r.db.Create(incident).Error; err != nil {
		return errors.Wrap(err, "failed to insert incident")
	}
	return nil
}

// CreateErrorLog inserts an audit error.
func (r *Repository) CreateErrorLog(errorLog *models.ErrorLog) error {
	if errorLog.Timestamp.IsZero() {
		errorLog.Timestamp = time.Now()
	}
	if err := r.db.Create(errorLog).Error; err != nil {
		return errors.Wrap(err, "failed to insert error log")
	}
	return nil
}

// ListSince returns incidents at or after since, oldest first. A positive
// limit keeps only the newest limit rows.
func (r *Repository) ListSince(since time.Time, limit int) ([]*models.Incident, error) {
	var incidents []*models.Incident
	q := r.db.Where("timestamp >= ?", since)
	if limit > 0 {
		q = q.Order("timestamp DESC").Limit(limit)
	} else {
		q = q.Order("timestamp ASC")
	}
	if err := q.Find(&incidents).Error; err != nil {
		return nil, errors.Wrap(err, "failed to query incidents")
	}
	if limit > 0 {
		for i, j := 0, len(incidents)-1; i < j; i, j = i+1, j-1 {
			incidents[i], incidents[j] = incidents[j], incidents[i]
		}
	}
	return incidents, nil
}

// Latest returns the most recent incident, nil when the journal is empty.
func (r *Repository) Latest() (*models.Incident, error) {
	var incident models.Incident
	err := r.db.Order("timestamp DESC").First(&incident).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get latest incident")
	}
	return &incident, nil
}

// SummarySince aggregates incidents per kind, most frequent first.
func (r *Repository) SummarySince(since time.Time) ([]models.KindSummary, error) {
	var incidents []*models.Incident
	err := r.db.Select("kind", "timestamp").
		Where("timestamp >= ?", since).
		Order("timestamp ASC").
		Find(&incidents).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to query incident summary")
	}

	index := make(map[string]int)
	var summaries []models.KindSummary
	for _, inc := range incidents {
		i, ok := index[inc.Kind]
		if !ok {
			index[inc.Kind] = len(summaries)
			summaries = append(summaries, models.KindSummary{Kind: inc.Kind, FirstSeen: inc.Timestamp})
			i = len(summaries) - 1
		}
		summaries[i].Count++
		summaries[i].LastSeen = inc.Timestamp
	}
	sortSummaries(summaries)
	return summaries, nil
}

// CountErrorsSince counts audit errors at or after since.
func (r *Repository) CountErrorsSince(since time.Time) (int64, error) {
	var n int64
	if err := r.db.Model(&models.ErrorLog{}).Where("timestamp >= ?", since).Count(&n).Error; err != nil {
		return 0, errors.Wrap(err, "failed to count error logs")
	}
	return n, nil
}

// DeleteBefore soft-deletes incidents older than before.
func (r *Repository) DeleteBefore(before time.Time) (int64, error) {
	result := r.db.Where("timestamp < ?", before).Delete(&models.Incident{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to delete old incidents")
	}
	return result.RowsAffected, nil
}

// Clear removes every incident and error log.
func (r *Repository) Clear() error {
	if err := r.db.Exec("DELETE FROM incidents").Error; err != nil {
		return errors.Wrap(err, "failed to clear incidents")
	}
	if err := r.db.Exec("DELETE FROM error_logs").Error; err != nil {
		return errors.Wrap(err, "failed to clear error logs")
	}
	return nil
}

func sortSummaries(s []models.KindSummary) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Count != s[j].Count {
			return s[i].Count > s[j].Count
		}
		return s[i].Kind < s[j].Kind
	})
}
