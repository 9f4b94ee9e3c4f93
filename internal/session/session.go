package session

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"FoodCart/internal/kv"
)

var ErrNoToken = errors.New("session: no valid token")

// Claims are read from the access token without verifying its signature;
// only the backend holds the signing key. They are used for display and to
// drop expired tokens early, never for authorization.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type Profile struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone,omitempty"`
	Role   string `json:"role,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

type Preferences struct {
	NotificationsEnabled bool   `json:"notificationsEnabled"`
	Theme                string `json:"theme"`
	Language             string `json:"language"`
}

func DefaultPreferences() Preferences {
	return Preferences{NotificationsEnabled: true, Theme: "light", Language: "vi"}
}

type Store struct {
	kv  kv.Store
	log *zap.Logger
	now func() time.Time
}

func New(store kv.Store, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{kv: store, log: log, now: time.Now}
}

func (s *Store) SetToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if _, err := parseClaims(token); err != nil {
		return err
	}
	return s.kv.Set(ctx, kv.KeyToken, token)
}

// Token returns the stored access token while it is unexpired. An expired or
// undecodable token is removed.
func (s *Store) Token(ctx context.Context) (string, bool) {
	tok, _, err := s.current(ctx)
	if err != nil {
		return "", false
	}
	return tok, true
}

func (s *Store) Claims(ctx context.Context) (Claims, error) {
	_, c, err := s.current(ctx)
	return c, err
}

func (s *Store) current(ctx context.Context) (string, Claims, error) {
	tok, ok, err := s.kv.Get(ctx, kv.KeyToken)
	if err != nil {
		s.log.Warn("token read failed", zap.Error(err))
		return "", Claims{}, ErrNoToken
	}
	if !ok || tok == "" {
		return "", Claims{}, ErrNoToken
	}

	c, err := parseClaims(tok)
	if err == nil && c.ExpiresAt != nil && !c.ExpiresAt.After(s.now()) {
		err = errors.New("token expired")
	}
	if err != nil {
		s.log.Info("dropping stored token", zap.Error(err))
		if rmErr := s.kv.Remove(ctx, kv.KeyToken); rmErr != nil {
			s.log.Warn("token remove failed", zap.Error(rmErr))
		}
		return "", Claims{}, ErrNoToken
	}
	return tok, c, nil
}

func parseClaims(token string) (Claims, error) {
	var c Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		return Claims{}, err
	}
	if c.UserID == "" {
		c.UserID = c.Subject
	}
	return c, nil
}

// Logout forgets the token and the cached profile.
func (s *Store) Logout(ctx context.Context) error {
	if err := s.kv.Remove(ctx, kv.KeyToken); err != nil {
		return err
	}
	return s.kv.Remove(ctx, kv.KeyUser)
}

func (s *Store) SetUser(ctx context.Context, p Profile) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, kv.KeyUser, string(b))
}

// User returns the cached profile. A malformed cache counts as absent.
func (s *Store) User(ctx context.Context) (Profile, bool) {
	raw, ok, err := s.kv.Get(ctx, kv.KeyUser)
	if err != nil || !ok {
		return Profile{}, false
	}

	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil || p.ID == "" {
		s.log.Warn("cached user malformed", zap.Error(err))
		return Profile{}, false
	}
	return p, true
}

func (s *Store) Preferences(ctx context.Context) Preferences {
	p := DefaultPreferences()

	if v, ok, _ := s.kv.Get(ctx, kv.KeyNotifications); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			p.NotificationsEnabled = b
		}
	}
	if v, ok, _ := s.kv.Get(ctx, kv.KeyTheme); ok && v != "" {
		p.Theme = v
	}
	if v, ok, _ := s.kv.Get(ctx, kv.KeyLanguage); ok && v != "" {
		p.Language = v
	}
	return p
}

func (s *Store) SetPreferences(ctx context.Context, p Preferences) error {
	if err := s.kv.Set(ctx, kv.KeyNotifications, strconv.FormatBool(p.NotificationsEnabled)); err != nil {
		return err
	}
	if err := s.kv.Set(ctx, kv.KeyTheme, p.Theme); err != nil {
		return err
	}
	return s.kv.Set(ctx, kv.KeyLanguage, p.Language)
}

// NotificationsEnabled is shaped for notify.CartListener.
func (s *Store) NotificationsEnabled() bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return s.Preferences(ctx).NotificationsEnabled
}
