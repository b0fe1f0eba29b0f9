package translator

import (
	"encoding/json"
	"net/http"

	"github.com/paddockhq/paddock/internal/core/constants"
	"github.com/paddockhq/paddock/internal/core/domain"
)

// WriteError answers in the dialect the client spoke. Native bodies follow
// {error, type, message}; OpenAI bodies follow {error:{message, type,
// code}}. Violations carry failed_scanners in both.
func WriteError(w http.ResponseWriter, dialect domain.Dialect, status int, kind, message string, failed []domain.FailedScanner) {
	w.Header().Set(constants.ContentTypeHeader, constants.ContentTypeJSON)
	w.WriteHeader(status)

	var body any
	if dialect == domain.DialectOpenAI {
		body = ErrorResponse{Error: ErrorDetail{
			Message:        message,
			Type:           openAIErrorType(kind),
			Code:           kind,
			FailedScanners: failed,
		}}
	} else {
		body = domain.NativeErrorResponse{
			Error:          nativeErrorCategory(kind),
			Type:           kind,
			Message:        message,
			FailedScanners: failed,
		}
	}
	_ = json.NewEncoder(w).Encode(body)
}

// openAIErrorType maps a wire kind onto the coarse OpenAI error taxonomy.
func openAIErrorType(kind string) string {
	switch kind {
	case domain.ErrKindInputBlocked, domain.ErrKindOutputBlocked:
		return domain.ViolationError
	case domain.ErrKindBadRequest:
		return "invalid_request_error"
	default:
		return "server_error"
	}
}

// nativeErrorCategory picks the native body's stable error string. Blocked
// kinds share the violation category; everything else is its own category.
func nativeErrorCategory(kind string) string {
	if kind == domain.ErrKindInputBlocked || kind == domain.ErrKindOutputBlocked {
		return domain.ViolationError
	}
	return kind
}
