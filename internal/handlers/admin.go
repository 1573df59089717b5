package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/reelmatch/backend/internal/admin"
	"github.com/reelmatch/backend/internal/logging"
	"github.com/reelmatch/backend/internal/repositories"
)

const maxLogoBytes = 5 << 20

// AdminHandler implements the administrative configuration endpoints. Every
// mutating endpoint re-verifies the admin password; there is no session
// token to steal.
type AdminHandler struct {
	Service AdminService
	Limiter RateLimiter
}

type adminLoginRequest struct {
	Password string `json:"password"`
}

// Login handles POST /api/v1/admin/login.
func (h AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "admin-login") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return
	}

	var req adminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := h.Service.VerifyPassword(ctx, req.Password); err != nil {
		switch {
		case errors.Is(err, admin.ErrBadPassword):
			respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "invalid admin password"})
		case errors.Is(err, admin.ErrPasswordNotSet):
			respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "admin password not set"})
		default:
			logger.Error("verify admin password", "error", err)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "verification failed"})
		}
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]bool{"ok": true})
}

type setPasswordRequest struct {
	Current  string `json:"current,omitempty"`
	Password string `json:"password"`
}

// SetPassword handles PUT /api/v1/admin/password. The current password is
// required once one has been set.
func (h AdminHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req setPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := h.Service.VerifyPassword(ctx, req.Current); err != nil && !errors.Is(err, admin.ErrPasswordNotSet) {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "invalid admin password"})
		return
	}

	if err := h.Service.SetPassword(ctx, req.Password); err != nil {
		logger.Warn("set admin password failed", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]bool{"ok": true})
}

// UploadLogo handles POST /api/v1/admin/logo with a multipart form carrying
// the image under the "logo" field.
func (h AdminHandler) UploadLogo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if err := authorizeAdmin(h.Service, r); err != nil {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "invalid admin password"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxLogoBytes)
	if err := r.ParseMultipartForm(maxLogoBytes); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid upload"})
		return
	}

	file, header, err := r.FormFile("logo")
	if err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "logo file is required"})
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".svg", ".webp":
	default:
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "unsupported image type"})
		return
	}

	url, err := h.Service.UploadLogo(ctx, ext, file)
	if err != nil {
		logger.Error("upload logo failed", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "upload failed"})
		return
	}

	respondJSON(ctx, w, http.StatusCreated, map[string]string{"logoUrl": url})
}

// Branding handles GET /api/v1/branding. It is public: clients render the
// configured logo before anyone authenticates.
func (h AdminHandler) Branding(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	url, err := h.Service.LogoURL(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("load branding", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "branding unavailable"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"logoUrl": url})
}

// GetSetting handles GET /api/v1/admin/settings/{key}.
func (h AdminHandler) GetSetting(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := authorizeAdmin(h.Service, r); err != nil {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "invalid admin password"})
		return
	}

	value, err := h.Service.GetSetting(ctx, r.PathValue("key"))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "setting not found"})
			return
		}
		logging.FromContext(ctx).Error("load setting", "key", r.PathValue("key"), "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "setting unavailable"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]json.RawMessage{"value": value})
}

// PutSetting handles PUT /api/v1/admin/settings/{key}.
func (h AdminHandler) PutSetting(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := authorizeAdmin(h.Service, r); err != nil {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "invalid admin password"})
		return
	}

	var body struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Value) == 0 {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := h.Service.PutSetting(ctx, r.PathValue("key"), body.Value); err != nil {
		logging.FromContext(ctx).Error("store setting", "key", r.PathValue("key"), "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "setting not stored"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]bool{"ok": true})
}

// authorizeAdmin checks the password supplied on the X-Admin-Password
// header.
func authorizeAdmin(service AdminService, r *http.Request) error {
	return service.VerifyPassword(r.Context(), r.Header.Get("X-Admin-Password"))
}
