package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/skilltree/backend/internal/models"
	"github.com/skilltree/backend/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeServiceError maps a registry error kind to a status and a user-facing message.
func writeServiceError(w http.ResponseWriter, op string, userID string, err error) {
	var fieldErrs services.FieldErrors
	if errors.As(err, &fieldErrs) {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse("invalid_input", fieldErrs))
		return
	}

	status, code, msg := http.StatusInternalServerError, "internal", "Something went wrong. Please try again."
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		status, code, msg = http.StatusUnauthorized, "unauthenticated", "You must be logged in to manage profiles."
	case errors.Is(err, services.ErrInvalidIdentifier):
		status, code, msg = http.StatusBadRequest, "invalid_identifier", "Short identifier can only contain letters, numbers, hyphens, and underscores (at most 64 characters)."
	case errors.Is(err, services.ErrInvalidInput):
		status, code, msg = http.StatusBadRequest, "invalid_input", "Please fill out all required fields."
	case errors.Is(err, services.ErrIdentifierTaken):
		status, code, msg = http.StatusConflict, "identifier_taken", "This identifier is already taken. Please choose another one."
	case errors.Is(err, services.ErrNotOwner):
		status, code, msg = http.StatusForbidden, "not_owner", "You can only delete your own profiles."
	case errors.Is(err, services.ErrNotFound):
		status, code, msg = http.StatusNotFound, "not_found", "Profile not found."
	case errors.Is(err, services.ErrImageRejected):
		status, code, msg = http.StatusUnprocessableEntity, "image_rejected", "The image was rejected by moderation. Please choose a different image."
	case errors.Is(err, services.ErrTimeout):
		status, code, msg = http.StatusGatewayTimeout, "timeout", "The request timed out. Please try again."
	case errors.Is(err, services.ErrAssetUploadFailed):
		status, code, msg = http.StatusBadGateway, "asset_upload_failed", "Failed to upload the profile image. Please try again."
	case errors.Is(err, services.ErrStoreUnavailable):
		status, code, msg = http.StatusServiceUnavailable, "store_unavailable", "Profiles are temporarily unavailable. Please try again."
	}

	if status >= http.StatusInternalServerError {
		log.Printf("[%s] user=%s error=%v", op, userID, err)
	}
	if services.IsRetryable(err) {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, models.NewCodedErrorResponse(code, msg))
}
