package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db      Pinger
	respond *Responder
}

func NewHealthHandler(db Pinger, respond *Responder) *HealthHandler {
	return &HealthHandler{db: db, respond: respond}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	err := h.db.PingContext(ctx)
	if err != nil {
		h.respond.Error(w, r, fmt.Errorf("database unreachable: %w", err))
		return
	}

	h.respond.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
