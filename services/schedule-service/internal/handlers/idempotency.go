package handlers

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
)

func (h *SessionHandler) finalizeIdempotencyError(ctx context.Context, tx pgx.Tx, key string, statusCode int, msg string) bool {
	body, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return false
	}
	if err := h.repo.FinalizeIdempotency(ctx, tx, key, "", statusCode, body); err != nil {
		h.logger.Error("failed to finalize idempotency (error)", "err", err)
		return false
	}
	return true
}
