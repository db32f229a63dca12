package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/skate-battle-backend/internal/battle"
	"github.com/DoyleJ11/skate-battle-backend/internal/dispute"
	"github.com/DoyleJ11/skate-battle-backend/internal/engine"
	"github.com/DoyleJ11/skate-battle-backend/internal/store"
)

type Battles interface {
	Create(ctx context.Context, playerA, playerB, firstAttacker string) (engine.Session, error)
	Get(ctx context.Context, id string) (engine.Session, error)
}

type Disputes interface {
	File(ctx context.Context, sessionID, participant string, moveIDs []string, reason string) (dispute.Dispute, error)
	ListPending(ctx context.Context) ([]dispute.Dispute, error)
	Status(ctx context.Context, disputeID string) (dispute.Dispute, dispute.Status, *dispute.Action, error)
	Resolve(ctx context.Context, disputeID string, req dispute.ActionRequest) (dispute.Action, error)
	Revert(ctx context.Context, disputeID string) (dispute.Action, error)
	Standing(ctx context.Context, sessionID string) (dispute.Standing, error)
}

type api struct {
	battles  Battles
	disputes Disputes
	log      *zap.Logger
}

type createBattleRequest struct {
	PlayerA       string `json:"player_a"`
	PlayerB       string `json:"player_b"`
	FirstAttacker string `json:"first_attacker,omitempty"`
}

func (a *api) createBattle(w http.ResponseWriter, r *http.Request) {
	var req createBattleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	s, err := a.battles.Create(r.Context(), req.PlayerA, req.PlayerB, req.FirstAttacker)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (a *api) getBattle(w http.ResponseWriter, r *http.Request) {
	s, err := a.battles.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *api) standing(w http.ResponseWriter, r *http.Request) {
	st, err := a.disputes.Standing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type fileDisputeRequest struct {
	Participant string   `json:"participant"`
	MoveIDs     []string `json:"move_ids"`
	Reason      string   `json:"reason"`
}

func (a *api) fileDispute(w http.ResponseWriter, r *http.Request) {
	var req fileDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	d, err := a.disputes.File(r.Context(), chi.URLParam(r, "id"), req.Participant, req.MoveIDs, req.Reason)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (a *api) listPending(w http.ResponseWriter, r *http.Request) {
	ds, err := a.disputes.ListPending(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Disputes []dispute.Dispute `json:"disputes"`
	}{Disputes: ds})
}

func (a *api) disputeStatus(w http.ResponseWriter, r *http.Request) {
	d, status, action, err := a.disputes.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Dispute dispute.Dispute `json:"dispute"`
		Status  dispute.Status  `json:"status"`
		Action  *dispute.Action `json:"action,omitempty"`
	}{Dispute: d, Status: status, Action: action})
}

type actionRequest struct {
	Kind        dispute.ActionKind `json:"kind"`
	Participant string             `json:"participant,omitempty"`
	WinnerID    string             `json:"winner_id,omitempty"`
	Note        string             `json:"note,omitempty"`
}

func (a *api) resolve(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	action, err := a.disputes.Resolve(r.Context(), chi.URLParam(r, "id"), dispute.ActionRequest{
		Kind:        req.Kind,
		Participant: req.Participant,
		WinnerID:    req.WinnerID,
		Note:        req.Note,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

func (a *api) revert(w http.ResponseWriter, r *http.Request) {
	action, err := a.disputes.Revert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, dispute.ErrNoAction):
		return http.StatusNotFound
	case errors.Is(err, battle.ErrInvalidBattle),
		errors.Is(err, dispute.ErrUnknownMove),
		errors.Is(err, dispute.ErrInvalidAction):
		return http.StatusBadRequest
	case errors.Is(err, dispute.ErrNotParticipant):
		return http.StatusForbidden
	case errors.Is(err, dispute.ErrNotTerminal), errors.Is(err, store.ErrAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: msg})
}
