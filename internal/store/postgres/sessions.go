package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/DoyleJ11/skate-battle-backend/internal/engine"
	"github.com/DoyleJ11/skate-battle-backend/internal/store"
)

// sessionRow keeps the whole session as JSON next to the columns the
// sweeper and the optimistic lock need to query.
type sessionRow struct {
	ID           string     `gorm:"column:id;primaryKey;size:64"`
	Version      int64      `gorm:"column:version;not null"`
	Status       string     `gorm:"column:status;size:16;not null;index"`
	VoteDeadline *time.Time `gorm:"column:vote_deadline;index"`
	TurnDeadline *time.Time `gorm:"column:turn_deadline;index"`
	State        []byte     `gorm:"column:state;type:jsonb;not null"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;not null"`
}

func (sessionRow) TableName() string {
	return "battle_sessions"
}

var terminalStatuses = []string{string(engine.StatusCompleted), string(engine.StatusAbandoned)}

type Sessions struct {
	db *gorm.DB
}

func NewSessions(db *gorm.DB) *Sessions {
	return &Sessions{db: db}
}

func toRow(s engine.Session) (sessionRow, error) {
	state, err := json.Marshal(s)
	if err != nil {
		return sessionRow{}, fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	row := sessionRow{
		ID:           s.ID,
		Version:      s.Version,
		Status:       string(s.Status),
		VoteDeadline: s.VoteDeadline,
		State:        state,
		UpdatedAt:    s.UpdatedAt,
	}
	if !s.TurnDeadline.IsZero() {
		d := s.TurnDeadline
		row.TurnDeadline = &d
	}
	return row, nil
}

func (p *Sessions) Create(ctx context.Context, s engine.Session) error {
	row, err := toRow(s)
	if err != nil {
		return err
	}
	return translate(p.db.WithContext(ctx).Create(&row).Error)
}

func (p *Sessions) Get(ctx context.Context, id string) (engine.Session, error) {
	var row sessionRow
	if err := p.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return engine.Session{}, translate(err)
	}
	var s engine.Session
	if err := json.Unmarshal(row.State, &s); err != nil {
		return engine.Session{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	s.Version = row.Version
	return s, nil
}

func (p *Sessions) PutIfVersion(ctx context.Context, s engine.Session, expected int64) error {
	row, err := toRow(s)
	if err != nil {
		return err
	}

	res := p.db.WithContext(ctx).
		Model(&sessionRow{}).
		Where("id = ? AND version = ?", s.ID, expected).
		Updates(map[string]any{
			"version":       row.Version,
			"status":        row.Status,
			"vote_deadline": row.VoteDeadline,
			"turn_deadline": row.TurnDeadline,
			"state":         row.State,
			"updated_at":    row.UpdatedAt,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var n int64
	if err := p.db.WithContext(ctx).Model(&sessionRow{}).Where("id = ?", s.ID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return store.ErrVersionConflict
}

func (p *Sessions) ListExpired(ctx context.Context, before time.Time) ([]string, error) {
	var ids []string
	err := p.db.WithContext(ctx).
		Model(&sessionRow{}).
		Where("status NOT IN ?", terminalStatuses).
		Where("(vote_deadline IS NOT NULL AND vote_deadline <= ?) OR (turn_deadline IS NOT NULL AND turn_deadline <= ?)", before, before).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list expired: %w", err)
	}
	return ids, nil
}

var _ store.Sessions = (*Sessions)(nil)
