package handlers

import (
	"errors"

	"github.com/himplant/crmsync/internal/syncerr"
)

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

func errorResponse(err error) ErrorResponse {
	resp := ErrorResponse{Message: err.Error()}
	var se *syncerr.Error
	if errors.As(err, &se) {
		resp.Kind = se.Kind.String()
	}
	return resp
}
