package chi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchcore/internal/domain/errcode"
	logpkg "github.com/kailas-cloud/searchcore/internal/logger"
)

// errorResponse is the body of every error reply.
type errorResponse struct {
	Message string       `json:"message"`
	Code    string       `json:"code"`
	Type    errcode.Type `json:"type"`
}

// writeError renders err through the error catalogue. Unclassified faults are logged
// with their cause and reach the client only as an opaque internal error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := errcode.FromError(err)
	resp := errcode.Render(e)
	log := logpkg.FromContext(r.Context())
	if resp.Type == errcode.TypeInternal {
		log.Error("Request failed", zap.String("code", resp.Code), zap.Error(err))
	} else {
		log.Debug("Request rejected", zap.String("code", resp.Code), zap.Error(err))
	}
	writeJSON(w, resp.Status, errorResponse{Message: resp.Message, Code: resp.Code, Type: resp.Type})
}
