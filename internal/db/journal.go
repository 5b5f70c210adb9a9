package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pysugar/codex-status-fleet/internal/db/models"
	"github.com/pysugar/codex-status-fleet/internal/sink"
)

// Journal is a sink that records events and the registry in sqlite. It is a
// local mirror for diagnostics, not the system of record.
type Journal struct {
	db *gorm.DB
}

// NewJournal wraps an initialized database.
func NewJournal(db *gorm.DB) *Journal {
	return &Journal{db: db}
}

// PushEvent stores one event.
func (j *Journal) PushEvent(ctx context.Context, ev sink.Event) error {
	parsed, err := json.Marshal(ev.Parsed)
	if err != nil {
		return fmt.Errorf("journal: encode parsed: %w", err)
	}
	row := models.StatusEvent{
		ID:           uuid.New().String(),
		AccountLabel: ev.AccountLabel,
		Host:         ev.Host,
		Provider:     ev.Parsed.Normalized.Provider,
		State:        eventState(ev.Parsed),
		Raw:          ev.Raw,
		Parsed:       string(parsed),
		TS:           ev.TS,
	}
	if err := j.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("journal: save event: %w", err)
	}
	return nil
}

// PushRegistry replaces the stored registry in one transaction.
func (j *Journal) PushRegistry(ctx context.Context, entries []sink.RegistryEntry) error {
	rows := make([]models.RegistryAccount, 0, len(entries))
	index := make(map[string]int, len(entries))
	for _, e := range entries {
		row := models.RegistryAccount{
			AccountLabel:     e.AccountLabel,
			Enabled:          e.Enabled,
			Provider:         e.Provider,
			ExpectedEmail:    e.ExpectedEmail,
			ExpectedPlanType: e.ExpectedPlanType,
			Note:             e.Note,
		}
		// Last write wins per label.
		if i, ok := index[e.AccountLabel]; ok {
			rows[i] = row
			continue
		}
		index[e.AccountLabel] = len(rows)
		rows = append(rows, row)
	}

	err := j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.RegistryAccount{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("journal: replace registry: %w", err)
	}
	return nil
}

// Latest returns the newest event for label, nil when none was recorded.
func (j *Journal) Latest(ctx context.Context, label string) (*models.StatusEvent, error) {
	var rows []models.StatusEvent
	err := j.db.WithContext(ctx).
		Where("account_label = ?", label).
		Order("created_at DESC, rowid DESC").
		Limit(1).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// LatestStates maps each label to the state of its newest event. Rows are
// never updated, so the highest rowid per label is the last insert.
func (j *Journal) LatestStates(ctx context.Context) map[string]string {
	newest := j.db.Model(&models.StatusEvent{}).
		Select("MAX(rowid)").
		Group("account_label")
	var rows []models.StatusEvent
	err := j.db.WithContext(ctx).
		Select("account_label", "state").
		Where("rowid IN (?)", newest).
		Find(&rows).Error
	if err != nil {
		log.Printf("[Journal] Failed to read latest states: %v", err)
		return nil
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.AccountLabel] = r.State
	}
	return out
}

// Registry returns the stored registry ordered by label.
func (j *Journal) Registry(ctx context.Context) ([]models.RegistryAccount, error) {
	var rows []models.RegistryAccount
	err := j.db.WithContext(ctx).Order("account_label").Find(&rows).Error
	return rows, err
}

func eventState(p sink.Parsed) string {
	switch {
	case p.Normalized.RequiresAuth:
		return "auth_required"
	case p.ProbeError:
		return "error"
	default:
		return "ok"
	}
}
