package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/racealert/race-alert/internal/alert"
	"github.com/racealert/race-alert/internal/metrics"
)

type webhookRequest struct {
	RaceID         string     `json:"race_id"`
	Status         string     `json:"status"`
	ScrapedAt      *time.Time `json:"scraped_at,omitempty"`
	ContentSnippet string     `json:"content_snippet,omitempty"`
}

type webhookResponse struct {
	Success           bool   `json:"success"`
	NotificationsSent int    `json:"notifications_sent"`
	From              string `json:"from"`
	To                string `json:"to"`
}

// handleWebhook ingests one scrape observation. Authentication runs before
// any parsing of the body.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	raceID, err := uuid.Parse(req.RaceID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid race_id")
		return
	}
	status, err := alert.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	at := s.clock.Now()
	if req.ScrapedAt != nil {
		at = req.ScrapedAt.UTC()
	}

	tr, err := s.store.IngestTransition(r.Context(), raceID, status, at)
	if err != nil {
		if errors.Is(err, alert.ErrRaceNotFound) {
			writeError(w, http.StatusNotFound, "race not found")
			return
		}
		s.logger.Error("ingest failed",
			zap.String("race_id", raceID.String()),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "ingest failed")
		return
	}
	metrics.ObserveTransition(tr.NotificationsCreated > 0, tr.NotificationsCreated)

	// Delivery is best effort; its outcome never changes the response code.
	sent := 0
	if s.dispatcher != nil {
		sent = s.dispatcher.Dispatch(r.Context(), tr)
	}

	writeJSON(w, http.StatusOK, webhookResponse{
		Success:           true,
		NotificationsSent: sent,
		From:              string(tr.From),
		To:                string(tr.To),
	})
}

func (s *Server) authorized(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Auth.WebhookSecret)) == 1
}

type subscribeRequest struct {
	Email    string `json:"email"`
	Timezone string `json:"timezone,omitempty"`
}

// handleSubscribe upserts the subscriber and subscribes it to every race.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	addr, err := mail.ParseAddress(req.Email)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid email")
		return
	}
	email := strings.ToLower(addr.Address)
	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}

	sub, err := s.store.UpsertSubscriber(r.Context(), email, timezone)
	if err != nil {
		s.logger.Error("subscribe: upsert failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "subscribe failed")
		return
	}
	count, err := s.store.SubscribeAll(r.Context(), sub.ID)
	if err != nil {
		s.logger.Error("subscribe: subscription failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "subscribe failed")
		return
	}

	if s.sender != nil {
		if err := s.sender.SendWelcome(r.Context(), email, count); err != nil {
			s.logger.Warn("welcome email failed",
				zap.String("to", email),
				zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"subscribed_races": count,
	})
}

type unsubscribeRequest struct {
	Email string `json:"email"`
}

// handleUnsubscribe deactivates a subscriber. GET supports one-click links
// from emails via ?email=; POST takes a JSON body.
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var rawEmail string
	if r.Method == http.MethodGet {
		rawEmail = r.URL.Query().Get("email")
	} else {
		var req unsubscribeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		rawEmail = req.Email
	}
	addr, err := mail.ParseAddress(rawEmail)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid email")
		return
	}

	already, err := s.store.UnsubscribeAll(r.Context(), strings.ToLower(addr.Address))
	if err != nil {
		if errors.Is(err, alert.ErrSubscriberNotFound) {
			writeError(w, http.StatusNotFound, "subscriber not found")
			return
		}
		s.logger.Error("unsubscribe failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "unsubscribe failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":              true,
		"already_unsubscribed": already,
	})
}
