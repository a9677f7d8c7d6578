package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/skilltree/backend/internal/middleware"
	"github.com/skilltree/backend/internal/models"
	"github.com/skilltree/backend/internal/services"
)

type ProfileHandler struct {
	registry      *services.ProfileRegistry
	maxSizeBytes  int64
	publicBaseURL string
}

func NewProfileHandler(registry *services.ProfileRegistry, maxSizeMB int64, publicBaseURL string) *ProfileHandler {
	return &ProfileHandler{
		registry:      registry,
		maxSizeBytes:  maxSizeMB * 1024 * 1024,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// RegisterProfileRoutes mounts the profile API. Resolve and availability are public;
// everything else goes through requireAuth.
func RegisterProfileRoutes(r chi.Router, h *ProfileHandler, requireAuth middleware.Authenticator) {
	r.Route("/profiles", func(r chi.Router) {
		r.Get("/by-identifier/{shortIdentifier}", h.GetProfileByIdentifier)
		r.Get("/availability/{shortIdentifier}", h.CheckAvailability)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", h.ListProfiles)
			r.Post("/", h.CreateProfile)
			r.Delete("/{profileId}", h.DeleteProfile)
		})
	})
}

func (h *ProfileHandler) publicURL(shortIdentifier string) string {
	return h.publicBaseURL + "/" + shortIdentifier
}

func (h *ProfileHandler) owned(p *models.Profile) models.OwnedProfile {
	return models.OwnedProfile{Profile: *p, PublicURL: h.publicURL(p.ShortIdentifier)}
}

func (h *ProfileHandler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	req, status, msg := h.decodeCreateRequest(w, r)
	if status != 0 {
		writeJSON(w, status, models.NewErrorResponse(msg))
		return
	}

	prof, err := h.registry.Create(r.Context(), userID, services.CreateProfileInput{
		ShortIdentifier: req.ShortIdentifier,
		DisplayName:     req.DisplayName,
		Bio:             req.Bio,
		Image:           req.Image,
	})
	if err != nil {
		writeServiceError(w, "CreateProfile", userID, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(h.owned(prof)))
}

// decodeCreateRequest accepts either multipart/form-data (fields plus an "image" file)
// or a JSON body with an optional base64 image. A non-zero status means the request was
// rejected before reaching the registry.
func (h *ProfileHandler) decodeCreateRequest(w http.ResponseWriter, r *http.Request) (models.CreateProfileRequest, int, string) {
	var req models.CreateProfileRequest

	multipart := strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")

	// Room for the form fields on top of the image itself. A JSON body carries the image
	// base64-encoded, which is 4/3 of its raw size.
	limit := h.maxSizeBytes + 1<<20
	if !multipart {
		limit = h.maxSizeBytes*4/3 + 1<<20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if multipart {
		if err := r.ParseMultipartForm(h.maxSizeBytes); err != nil {
			if isBodyTooLarge(err) {
				return req, http.StatusRequestEntityTooLarge, "Request body is too large"
			}
			return req, http.StatusBadRequest, "File too large or invalid form data"
		}
		req.ShortIdentifier = r.FormValue("short_identifier")
		req.DisplayName = r.FormValue("display_name")
		req.Bio = r.FormValue("bio")

		file, header, err := r.FormFile("image")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			return req, http.StatusBadRequest, "Invalid image upload"
		default:
			defer file.Close()
			data, err := io.ReadAll(io.LimitReader(file, h.maxSizeBytes+1))
			if err != nil {
				return req, http.StatusBadRequest, "Invalid image upload"
			}
			req.Image = &models.ImageUpload{
				Filename:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Data:        data,
			}
		}
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if isBodyTooLarge(err) {
			return req, http.StatusRequestEntityTooLarge, "Request body is too large"
		}
		return req, http.StatusBadRequest, "Invalid request body"
	}

	if req.Image == nil || len(req.Image.Data) == 0 {
		req.Image = nil
		return req, 0, ""
	}
	if int64(len(req.Image.Data)) > h.maxSizeBytes {
		return req, http.StatusRequestEntityTooLarge, "Image is too large"
	}
	// The sniffed type wins over whatever the client declared.
	req.Image.ContentType = http.DetectContentType(req.Image.Data)
	if !isValidImageType(req.Image.ContentType) {
		return req, http.StatusBadRequest, "Invalid image type. Allowed: JPEG, PNG, GIF, WebP"
	}
	return req, 0, ""
}

func (h *ProfileHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}
	if owner := r.URL.Query().Get("owner"); owner != "" && owner != "me" {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Only owner=me is supported"))
		return
	}

	profiles, err := h.registry.ListByOwner(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "ListProfiles", userID, err)
		return
	}
	out := make([]models.OwnedProfile, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, h.owned(p))
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(out))
}

func (h *ProfileHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	profileID := chi.URLParam(r, "profileId")
	if err := h.registry.Delete(r.Context(), userID, profileID); err != nil {
		writeServiceError(w, "DeleteProfile", userID, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]string{"message": "Profile deleted successfully"}))
}

// GetProfileByIdentifier is the anonymous public lookup.
func (h *ProfileHandler) GetProfileByIdentifier(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "shortIdentifier")
	prof, err := h.registry.ResolveByIdentifier(r.Context(), identifier)
	if err != nil {
		writeServiceError(w, "GetProfileByIdentifier", "", err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(prof.Public(h.publicURL(prof.ShortIdentifier))))
}

func (h *ProfileHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "shortIdentifier")
	available, err := h.registry.CheckAvailability(r.Context(), identifier)
	if err != nil {
		writeServiceError(w, "CheckAvailability", "", err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(models.AvailabilityResponse{
		ShortIdentifier: identifier,
		Available:       available,
	}))
}

func isBodyTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge)
}

func isValidImageType(contentType string) bool {
	validTypes := map[string]bool{
		"image/jpeg": true,
		"image/png":  true,
		"image/gif":  true,
		"image/webp": true,
	}
	return validTypes[contentType]
}
