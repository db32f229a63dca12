// Package notify hands player-facing notifications to whatever delivers
// them. Delivery is fire-and-forget: failures are logged by the caller and
// never retried.
package notify

import (
	"context"

	"go.uber.org/zap"
)

type Kind string

const (
	KindVoteReminder    Kind = "vote_reminder"
	KindRoundResolved   Kind = "round_resolved"
	KindBattleCompleted Kind = "battle_completed"
	KindBattleAbandoned Kind = "battle_abandoned"
)

type Notifier interface {
	Notify(ctx context.Context, participantID string, kind Kind, payload any) error
}

// LogNotifier writes notifications to the log. It stands in for push
// delivery in development.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notify")}
}

func (n *LogNotifier) Notify(_ context.Context, participantID string, kind Kind, payload any) error {
	n.log.Info("notification",
		zap.String("participant", participantID),
		zap.String("kind", string(kind)),
		zap.Any("payload", payload))
	return nil
}
