package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/DoyleJ11/skate-battle-backend/internal/dispute"
	"github.com/DoyleJ11/skate-battle-backend/internal/store"
)

type disputeRow struct {
	ID        string    `gorm:"column:id;primaryKey;size:64"`
	SessionID string    `gorm:"column:session_id;size:64;not null;index"`
	FiledBy   string    `gorm:"column:filed_by;size:128;not null"`
	MoveIDs   []byte    `gorm:"column:move_ids;type:jsonb;not null"`
	Reason    string    `gorm:"column:reason;type:text"`
	FiledAt   time.Time `gorm:"column:filed_at;not null;index"`
}

func (disputeRow) TableName() string {
	return "battle_disputes"
}

// actionRow keeps every action a dispute has had. The partial index allows one
// unreverted row per dispute, which is what makes PutAction idempotent.
type actionRow struct {
	ID          string     `gorm:"column:id;primaryKey;size:64"`
	DisputeID   string     `gorm:"column:dispute_id;size:64;not null;index;uniqueIndex:idx_dispute_actions_active,where:reverted_at IS NULL"`
	SessionID   string     `gorm:"column:session_id;size:64;not null;index"`
	Kind        string     `gorm:"column:kind;size:32;not null"`
	Participant string     `gorm:"column:participant;size:128"`
	WinnerID    string     `gorm:"column:winner_id;size:128"`
	Note        string     `gorm:"column:note;type:text"`
	AppliedAt   time.Time  `gorm:"column:applied_at;not null"`
	RevertedAt  *time.Time `gorm:"column:reverted_at"`
}

func (actionRow) TableName() string {
	return "battle_dispute_actions"
}

func (r actionRow) toAction() dispute.Action {
	return dispute.Action{
		ID:          r.ID,
		DisputeID:   r.DisputeID,
		SessionID:   r.SessionID,
		Kind:        dispute.ActionKind(r.Kind),
		Participant: r.Participant,
		WinnerID:    r.WinnerID,
		Note:        r.Note,
		AppliedAt:   r.AppliedAt,
		RevertedAt:  r.RevertedAt,
	}
}

func (r disputeRow) toDispute() (dispute.Dispute, error) {
	d := dispute.Dispute{
		ID:        r.ID,
		SessionID: r.SessionID,
		FiledBy:   r.FiledBy,
		Reason:    r.Reason,
		FiledAt:   r.FiledAt,
	}
	if err := json.Unmarshal(r.MoveIDs, &d.MoveIDs); err != nil {
		return dispute.Dispute{}, fmt.Errorf("decode dispute %s: %w", r.ID, err)
	}
	return d, nil
}

type Disputes struct {
	db *gorm.DB
}

func NewDisputes(db *gorm.DB) *Disputes {
	return &Disputes{db: db}
}

func (p *Disputes) File(ctx context.Context, d dispute.Dispute) error {
	moves, err := json.Marshal(d.MoveIDs)
	if err != nil {
		return err
	}
	row := disputeRow{
		ID:        d.ID,
		SessionID: d.SessionID,
		FiledBy:   d.FiledBy,
		MoveIDs:   moves,
		Reason:    d.Reason,
		FiledAt:   d.FiledAt,
	}
	return translate(p.db.WithContext(ctx).Create(&row).Error)
}

func (p *Disputes) Get(ctx context.Context, id string) (dispute.Dispute, error) {
	var row disputeRow
	if err := p.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return dispute.Dispute{}, translate(err)
	}
	return row.toDispute()
}

func (p *Disputes) ListPending(ctx context.Context) ([]dispute.Dispute, error) {
	var rows []disputeRow
	err := p.db.WithContext(ctx).
		Where("NOT EXISTS (SELECT 1 FROM battle_dispute_actions a WHERE a.dispute_id = battle_disputes.id AND a.reverted_at IS NULL)").
		Order("filed_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list pending disputes: %w", err)
	}
	out := make([]dispute.Dispute, 0, len(rows))
	for _, r := range rows {
		d, err := r.toDispute()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (p *Disputes) PutAction(ctx context.Context, a dispute.Action) (dispute.Action, error) {
	if _, err := p.Get(ctx, a.DisputeID); err != nil {
		return dispute.Action{}, err
	}
	row := actionRow{
		ID:          a.ID,
		DisputeID:   a.DisputeID,
		SessionID:   a.SessionID,
		Kind:        string(a.Kind),
		Participant: a.Participant,
		WinnerID:    a.WinnerID,
		Note:        a.Note,
		AppliedAt:   a.AppliedAt,
		RevertedAt:  a.RevertedAt,
	}
	err := translate(p.db.WithContext(ctx).Create(&row).Error)
	if errors.Is(err, store.ErrAlreadyExists) {
		return p.activeAction(ctx, a.DisputeID)
	}
	if err != nil {
		return dispute.Action{}, err
	}
	return row.toAction(), nil
}

// ActionFor returns the most recent action for the dispute.
func (p *Disputes) ActionFor(ctx context.Context, disputeID string) (dispute.Action, error) {
	var row actionRow
	err := p.db.WithContext(ctx).
		Where("dispute_id = ?", disputeID).
		Order("applied_at DESC").
		First(&row).Error
	if err != nil {
		return dispute.Action{}, translate(err)
	}
	return row.toAction(), nil
}

func (p *Disputes) activeAction(ctx context.Context, disputeID string) (dispute.Action, error) {
	var row actionRow
	err := p.db.WithContext(ctx).
		Where("dispute_id = ? AND reverted_at IS NULL", disputeID).
		First(&row).Error
	if err != nil {
		return dispute.Action{}, translate(err)
	}
	return row.toAction(), nil
}

func (p *Disputes) MarkReverted(ctx context.Context, disputeID string, at time.Time) (dispute.Action, error) {
	active, err := p.activeAction(ctx, disputeID)
	if errors.Is(err, store.ErrNotFound) {
		// Already reverted, or never resolved.
		return p.ActionFor(ctx, disputeID)
	}
	if err != nil {
		return dispute.Action{}, err
	}
	res := p.db.WithContext(ctx).
		Model(&actionRow{}).
		Where("id = ? AND reverted_at IS NULL", active.ID).
		Update("reverted_at", at)
	if res.Error != nil {
		return dispute.Action{}, res.Error
	}
	if res.RowsAffected == 1 {
		active.RevertedAt = &at
		return active, nil
	}
	return p.ActionFor(ctx, disputeID)
}

func (p *Disputes) Actions(ctx context.Context, sessionID string) ([]dispute.Action, error) {
	var rows []actionRow
	if err := p.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("applied_at").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]dispute.Action, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toAction())
	}
	return out, nil
}

var _ dispute.Repository = (*Disputes)(nil)
