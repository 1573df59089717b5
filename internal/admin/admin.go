// Package admin implements the administrative configuration surface:
// password, branding logo, and free-form settings. Plain CRUD, no
// coordination concerns.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/reelmatch/backend/internal/repositories"
)

var (
	// ErrBadPassword indicates the supplied password did not match.
	ErrBadPassword = errors.New("invalid admin password")
	// ErrPasswordNotSet indicates no admin password has been configured yet.
	ErrPasswordNotSet = errors.New("admin password not set")
)

const (
	passwordKey = "admin_password_hash"
	logoKey     = "branding_logo_url"
)

// SettingsStore persists keyed JSON settings.
type SettingsStore interface {
	Get(ctx context.Context, key string) (json.RawMessage, error)
	Put(ctx context.Context, key string, value json.RawMessage) error
}

// AssetStorage persists uploaded branding assets and returns their public
// location.
type AssetStorage interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// Service provides admin configuration operations.
type Service struct {
	Settings SettingsStore
	Storage  AssetStorage
}

// SetPassword hashes and stores the admin password.
func (s *Service) SetPassword(ctx context.Context, password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	value, err := json.Marshal(string(hashed))
	if err != nil {
		return fmt.Errorf("encode password hash: %w", err)
	}

	return s.Settings.Put(ctx, passwordKey, value)
}

// VerifyPassword checks the supplied password against the stored hash.
func (s *Service) VerifyPassword(ctx context.Context, password string) error {
	value, err := s.Settings.Get(ctx, passwordKey)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrPasswordNotSet
		}
		return fmt.Errorf("load password hash: %w", err)
	}

	var hashed string
	if err := json.Unmarshal(value, &hashed); err != nil {
		return fmt.Errorf("decode password hash: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)); err != nil {
		return ErrBadPassword
	}
	return nil
}

// UploadLogo stores a branding logo and records its public location.
func (s *Service) UploadLogo(ctx context.Context, ext string, r io.Reader) (string, error) {
	if s.Storage == nil {
		return "", errors.New("asset storage not configured")
	}

	name := fmt.Sprintf("branding/logo-%d%s", time.Now().UTC().UnixNano(), ext)
	location, err := s.Storage.Save(ctx, name, r)
	if err != nil {
		return "", fmt.Errorf("store logo: %w", err)
	}

	value, err := json.Marshal(location)
	if err != nil {
		return "", fmt.Errorf("encode logo location: %w", err)
	}
	if err := s.Settings.Put(ctx, logoKey, value); err != nil {
		return "", fmt.Errorf("record logo location: %w", err)
	}

	return location, nil
}

// LogoURL returns the current branding logo location, empty when unset.
func (s *Service) LogoURL(ctx context.Context) (string, error) {
	value, err := s.Settings.Get(ctx, logoKey)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("load logo location: %w", err)
	}

	var location string
	if err := json.Unmarshal(value, &location); err != nil {
		return "", fmt.Errorf("decode logo location: %w", err)
	}
	return location, nil
}

// GetSetting loads one free-form setting.
func (s *Service) GetSetting(ctx context.Context, key string) (json.RawMessage, error) {
	return s.Settings.Get(ctx, key)
}

// PutSetting stores one free-form setting.
func (s *Service) PutSetting(ctx context.Context, key string, value json.RawMessage) error {
	return s.Settings.Put(ctx, key, value)
}
