package backend

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/coffeeshop/core/access"
	"github.com/relabs-tech/coffeeshop/core/logger"
)

// errBadRequest marks a request body that cannot be decoded or validated
var errBadRequest = errors.New("bad request")

// statusMessages are the messages of the error envelope. Internal details are
// logged, never returned.
var statusMessages = map[int]string{
	http.StatusBadRequest:          "bad request",
	http.StatusUnauthorized:        "not authorized",
	http.StatusForbidden:           "forbidden",
	http.StatusNotFound:            "resource not found",
	http.StatusMethodNotAllowed:    "method not allowed",
	http.StatusUnprocessableEntity: "unprocessable",
	http.StatusInternalServerError: "internal server error",
}

// ErrorEnvelope is the body of every error response
type ErrorEnvelope struct {
	Success bool   `json:"success"`
	Error   int    `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// StatusMessage returns the envelope message for status
func StatusMessage(status int) string {
	if m, ok := statusMessages[status]; ok {
		return m
	}
	return http.StatusText(status)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	data, err := json.MarshalWithOption(body, json.DisableHTMLEscape())
	if err != nil {
		logger.FromContext(r.Context()).WithError(err).Errorln("Error 4930: cannot encode response")
		status = http.StatusInternalServerError
		data, _ = json.Marshal(ErrorEnvelope{Error: status, Message: StatusMessage(status)})
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeStatus writes the error envelope for status
func writeStatus(w http.ResponseWriter, r *http.Request, status int) {
	writeJSON(w, r, status, ErrorEnvelope{Error: status, Message: StatusMessage(status)})
}

// writeError maps err to a status and writes the error envelope
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var authErr *access.AuthError
	switch {
	case errors.As(err, &authErr):
		writeJSON(w, r, authErr.Status, ErrorEnvelope{
			Error:   authErr.Status,
			Message: authErr.Message,
			Code:    authErr.Code,
		})
	case errors.Is(err, errBadRequest):
		logger.FromContext(r.Context()).WithError(err).Debugln("bad request")
		writeStatus(w, r, http.StatusBadRequest)
	case errors.Is(err, ErrNotFound):
		writeStatus(w, r, http.StatusNotFound)
	case errors.Is(err, ErrConstraintViolation):
		logger.FromContext(r.Context()).WithError(err).Infoln("rejected by constraint")
		writeStatus(w, r, http.StatusUnprocessableEntity)
	default:
		logger.FromContext(r.Context()).WithError(err).Errorln("Error 4931: request failed")
		writeStatus(w, r, http.StatusInternalServerError)
	}
}

// NotFoundHandler writes the 404 error envelope
func NotFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, r, http.StatusNotFound)
	})
}

// MethodNotAllowedHandler writes the 405 error envelope
func MethodNotAllowedHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, r, http.StatusMethodNotAllowed)
	})
}
