package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skilltree/backend/internal/middleware"
	"github.com/skilltree/backend/internal/models"
	"github.com/skilltree/backend/internal/services"
	"github.com/skilltree/backend/internal/storage"
)

const (
	testSecret  = "test-secret"
	testBaseURL = "https://skilltree.example.com"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

type envelope[T any] struct {
	Success bool              `json:"success"`
	Data    T                 `json:"data"`
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Errors  map[string]string `json:"errors"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	return newTestRouterWithLimit(t, 1)
}

func newTestRouterWithLimit(t *testing.T, maxSizeMB int64) http.Handler {
	t.Helper()
	assets, err := services.NewLocalAssetService(t.TempDir(), testBaseURL)
	require.NoError(t, err)
	reg := services.NewProfileRegistry(storage.NewMemoryStore(), assets, services.RegistryConfig{
		RequireBio:    true,
		StoreTimeout:  time.Second,
		UploadTimeout: time.Second,
	})
	h := NewProfileHandler(reg, maxSizeMB, testBaseURL+"/")

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		RegisterProfileRoutes(r, h, middleware.JWTAuth(testSecret))
	})
	return r
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func do(t *testing.T, h http.Handler, method, target, userID string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, userID))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createJSON(t *testing.T, h http.Handler, userID string, req models.CreateProfileRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return do(t, h, http.MethodPost, "/api/profiles", userID, body, "application/json")
}

func multipartBody(t *testing.T, fields map[string]string, filename string, file []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		fw, err := mw.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func validRequest(identifier string) models.CreateProfileRequest {
	return models.CreateProfileRequest{
		ShortIdentifier: identifier,
		DisplayName:     "Jane Doe",
		Bio:             "Go developer",
	}
}

func TestCreateProfile(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		h := newTestRouter(t)
		rec := createJSON(t, h, "user-1", validRequest("jane"))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		env := decode[models.OwnedProfile](t, rec)
		assert.True(t, env.Success)
		assert.NotEmpty(t, env.Data.ID)
		assert.Equal(t, "user-1", env.Data.OwnerID)
		assert.Equal(t, testBaseURL+"/jane", env.Data.PublicURL)
	})

	t.Run("json with base64 image", func(t *testing.T) {
		h := newTestRouter(t)
		req := validRequest("pic")
		req.Image = &models.ImageUpload{Filename: "a.png", ContentType: "text/plain", Data: pngBytes}
		rec := createJSON(t, h, "user-1", req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		env := decode[models.OwnedProfile](t, rec)
		assert.True(t, strings.HasPrefix(env.Data.ImageURL, testBaseURL+"/uploads/profiles/user-1/"), env.Data.ImageURL)
	})

	t.Run("multipart with image", func(t *testing.T) {
		h := newTestRouter(t)
		body, ct := multipartBody(t, map[string]string{
			"short_identifier": "multi",
			"display_name":     "Multi",
			"bio":              "Uploads things",
		}, "face.png", pngBytes)

		rec := do(t, h, http.MethodPost, "/api/profiles", "user-1", body, ct)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		env := decode[models.OwnedProfile](t, rec)
		assert.Contains(t, env.Data.ImageURL, "_face.png")
	})

	t.Run("multipart without image", func(t *testing.T) {
		h := newTestRouter(t)
		body, ct := multipartBody(t, map[string]string{
			"short_identifier": "plain",
			"display_name":     "Plain",
			"bio":              "No picture",
		}, "", nil)

		rec := do(t, h, http.MethodPost, "/api/profiles", "user-1", body, ct)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Empty(t, decode[models.OwnedProfile](t, rec).Data.ImageURL)
	})

	t.Run("rejects non-image upload", func(t *testing.T) {
		h := newTestRouter(t)
		body, ct := multipartBody(t, map[string]string{
			"short_identifier": "txt",
			"display_name":     "Text",
			"bio":              "bio",
		}, "notes.png", []byte("just some text"))

		rec := do(t, h, http.MethodPost, "/api/profiles", "user-1", body, ct)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects oversized image", func(t *testing.T) {
		h := newTestRouter(t)
		big := append(append([]byte{}, pngBytes...), bytes.Repeat([]byte{0}, 1024*1024)...)
		req := validRequest("big")
		req.Image = &models.ImageUpload{Filename: "big.png", Data: big}
		rec := createJSON(t, h, "user-1", req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
	})

	t.Run("accepts base64 image near the limit", func(t *testing.T) {
		h := newTestRouterWithLimit(t, 4)
		data := append(append([]byte{}, pngBytes...), bytes.Repeat([]byte{0}, 4*1024*1024-100*1024)...)
		req := validRequest("nearlimit")
		req.Image = &models.ImageUpload{Filename: "near.png", Data: data}
		rec := createJSON(t, h, "user-1", req)
		assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	})

	t.Run("body past the cap is 413", func(t *testing.T) {
		h := newTestRouter(t)
		body := []byte(`{"short_identifier":"huge","bio":"` + strings.Repeat("a", 3*1024*1024) + `"}`)
		rec := do(t, h, http.MethodPost, "/api/profiles", "user-1", body, "application/json")
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
	})

	t.Run("requires auth", func(t *testing.T) {
		h := newTestRouter(t)
		rec := createJSON(t, h, "", validRequest("jane"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		h := newTestRouter(t)
		rec := do(t, h, http.MethodPost, "/api/profiles", "user-1", []byte("{"), "application/json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		h := newTestRouter(t)
		req := validRequest("jane")
		req.DisplayName = ""
		rec := createJSON(t, h, "user-1", req)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		env := decode[any](t, rec)
		assert.Equal(t, "invalid_input", env.Code)
		assert.Contains(t, env.Errors, "display_name")
	})

	t.Run("invalid identifier", func(t *testing.T) {
		h := newTestRouter(t)
		rec := createJSON(t, h, "user-1", validRequest("jane doe"))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_identifier", decode[any](t, rec).Code)
	})

	t.Run("identifier taken", func(t *testing.T) {
		h := newTestRouter(t)
		require.Equal(t, http.StatusCreated, createJSON(t, h, "user-1", validRequest("jane")).Code)

		rec := createJSON(t, h, "user-2", validRequest("jane"))
		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "identifier_taken", decode[any](t, rec).Code)
	})
}

func TestListProfiles(t *testing.T) {
	h := newTestRouter(t)
	require.Equal(t, http.StatusCreated, createJSON(t, h, "user-1", validRequest("one")).Code)
	require.Equal(t, http.StatusCreated, createJSON(t, h, "user-1", validRequest("two")).Code)
	require.Equal(t, http.StatusCreated, createJSON(t, h, "user-2", validRequest("three")).Code)

	rec := do(t, h, http.MethodGet, "/api/profiles?owner=me", "user-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode[[]models.OwnedProfile](t, rec)
	assert.Len(t, env.Data, 2)

	rec = do(t, h, http.MethodGet, "/api/profiles", "user-3", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)

	rec = do(t, h, http.MethodGet, "/api/profiles?owner=user-2", "user-1", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/profiles", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeleteProfile(t *testing.T) {
	h := newTestRouter(t)
	created := decode[models.OwnedProfile](t, createJSON(t, h, "user-1", validRequest("jane")))
	target := "/api/profiles/" + created.Data.ID

	rec := do(t, h, http.MethodDelete, target, "user-2", nil, "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "not_owner", decode[any](t, rec).Code)

	rec = do(t, h, http.MethodDelete, target, "user-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodDelete, target, "user-1", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/profiles/by-identifier/jane", "", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetProfileByIdentifier(t *testing.T) {
	h := newTestRouter(t)
	require.Equal(t, http.StatusCreated, createJSON(t, h, "user-1", validRequest("jane")).Code)

	rec := do(t, h, http.MethodGet, "/api/profiles/by-identifier/jane", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode[models.PublicProfile](t, rec)
	assert.Equal(t, "Jane Doe", env.Data.DisplayName)
	assert.Equal(t, testBaseURL+"/jane", env.Data.PublicURL)
	assert.False(t, env.Data.MemberSince.IsZero())
	assert.NotContains(t, rec.Body.String(), "owner_id")

	rec = do(t, h, http.MethodGet, "/api/profiles/by-identifier/Jane", "", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/profiles/by-identifier/no%20pe", "", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckAvailability(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/profiles/availability/jane", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[models.AvailabilityResponse](t, rec).Data.Available)

	require.Equal(t, http.StatusCreated, createJSON(t, h, "user-1", validRequest("jane")).Code)

	rec = do(t, h, http.MethodGet, "/api/profiles/availability/jane", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[models.AvailabilityResponse](t, rec).Data.Available)

	rec = do(t, h, http.MethodGet, "/api/profiles/availability/bad.id", "", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
