package pkg

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mandyibene/family-twigs-backend/pkg/i18n"
)

// ErrorBody is the envelope of every failed request:
//
//	{"error":{"code":"UNAUTHORIZED","message":"..."}}
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a stable machine code and a localized message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SuccessBody is the envelope of successful requests that return a message:
//
//	{"message":"...","data":{...}}
type SuccessBody struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// JSON writes data as-is. Used for bodies that do not follow the message envelope,
// such as {"accessToken":"..."}.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// Success writes {"message":<localized messageKey>,"data":data}.
// A nil data is sent as an empty object.
func Success(w http.ResponseWriter, r *http.Request, status int, messageKey string, data any) {
	if data == nil {
		data = struct{}{}
	}
	l := i18n.NewLocalizer(i18n.FromContext(r.Context()))
	JSON(w, status, SuccessBody{Message: l.T(messageKey), Data: data})
}

// Error writes the error envelope. Status, code and message come from the
// error kind; a *CodedError overrides code and message.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status, code, key := describe(err)

	var coded *CodedError
	if errors.As(err, &coded) {
		code, key = coded.Code, coded.MessageKey
	}

	l := i18n.NewLocalizer(i18n.FromContext(r.Context()))
	JSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: l.T(key)}})
}

// StatusOf maps a domain error to its HTTP status code.
func StatusOf(err error) int {
	status, _, _ := describe(err)
	return status
}

// describe maps a domain error kind to (status, default code, default message key).
// errors.Is walks the wrap chain, so fmt.Errorf("%w: ...") values match too.
func describe(err error) (int, string, string) {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "errors.notFound"
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED", "errors.unauthorized"
	case errors.Is(err, ErrThrottled):
		return http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "errors.tooManyRequests"
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict, "ALREADY_EXISTS", "errors.userExists"
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "INVALID_INPUT", "errors.invalidInput"
	default:
		return http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "errors.internal"
	}
}
