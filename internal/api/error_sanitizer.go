package api

import (
	"net/http"

	"github.com/databender/leadengine/internal/pkg/logger"
)

// respondSafeError logs the full internal error and sends only publicMsg to
// the client. Storage and upstream errors must never reach API consumers.
func respondSafeError(w http.ResponseWriter, code int, internalErr error, publicMsg string) {
	if internalErr != nil {
		logger.Error(publicMsg, "status", code, "error", internalErr.Error())
	}
	respondError(w, code, publicMsg)
}
