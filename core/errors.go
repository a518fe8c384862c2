package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	SyncErrorBadInput           = "HEALTHSYNC_BAD_INPUT"
	SyncErrorCursorNotFound     = "HEALTHSYNC_CURSOR_NOT_FOUND"
	SyncErrorProvisioningFailed = "HEALTHSYNC_PROVISIONING_FAILED"
	SyncErrorTransportFailed    = "HEALTHSYNC_TRANSPORT_FAILED"
	SyncErrorSchemaInvalid      = "HEALTHSYNC_SCHEMA_INVALID"
	SyncErrorSignatureMismatch  = "HEALTHSYNC_SIGNATURE_MISMATCH"
	SyncErrorSourceUnauthorized = "HEALTHSYNC_SOURCE_UNAUTHORIZED"
	SyncErrorInternal           = "HEALTHSYNC_INTERNAL_ERROR"
)

// MapError normalizes any error into a categorized go-errors envelope with a
// HEALTHSYNC_* text code and an HTTP status for API-facing surfaces.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureSyncErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "cursor not found"):
		return newSyncError(err.Error(), goerrors.CategoryNotFound, SyncErrorCursorNotFound)
	case strings.Contains(msg, "provision"):
		return newSyncError(err.Error(), goerrors.CategoryOperation, SyncErrorProvisioningFailed)
	case strings.Contains(msg, "schema"):
		return newSyncError(err.Error(), goerrors.CategoryValidation, SyncErrorSchemaInvalid)
	case strings.Contains(msg, "signature"):
		return newSyncError(err.Error(), goerrors.CategoryAuth, SyncErrorSignatureMismatch)
	case strings.Contains(msg, "authoriz"):
		return newSyncError(err.Error(), goerrors.CategoryAuth, SyncErrorSourceUnauthorized)
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "unexpected status"):
		return newSyncError(err.Error(), goerrors.CategoryExternal, SyncErrorTransportFailed)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newSyncError(err.Error(), goerrors.CategoryBadInput, SyncErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureSyncErrorEnvelope(mapped)
}

func newSyncError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureSyncErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureSyncErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = syncHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultSyncTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultSyncTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return SyncErrorBadInput
	case goerrors.CategoryNotFound:
		return SyncErrorCursorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return SyncErrorSourceUnauthorized
	case goerrors.CategoryExternal:
		return SyncErrorTransportFailed
	case goerrors.CategoryOperation:
		return SyncErrorProvisioningFailed
	default:
		return SyncErrorInternal
	}
}

func syncHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
