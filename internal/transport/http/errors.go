package httptransport

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/apperr"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/model"
)

// errorPayload classifies err for the response body. Internal errors keep
// their details out of the response.
func errorPayload(err error) *model.ErrorPayload {
	p := &model.ErrorPayload{Kind: apperr.Kind(err), Message: apperr.Message(err)}

	var (
		v *apperr.ValidationError
		r *apperr.RedirectRecoveryError
	)
	switch {
	case errors.As(err, &v):
		p.Step, p.Field = v.Step, v.Field
	case errors.As(err, &r):
		p.Redirect = r.RedirectURL
	}
	if p.Kind == apperr.KindInternal {
		p.Message = "internal error"
	}
	return p
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("checkout request failed", zap.Error(err))
	}
	p := errorPayload(err)
	if p.Redirect != "" {
		w.Header().Set("Location", p.Redirect)
	}
	writeJSON(w, status, model.ErrorResponse{Status: "error", Error: p})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, model.ErrorResponse{
		Status: "error",
		Error:  &model.ErrorPayload{Kind: "bad_request", Message: msg},
	})
}
