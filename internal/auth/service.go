// Package auth implements credential checks, device-bound sessions, and the
// bearer tokens that authenticate API requests.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/errs"
	"github.com/nexalabs/nexa/internal/events"
	"github.com/nexalabs/nexa/internal/settings"
)

// Claims is the JWT payload: the user id and the session's public id, so a
// revoked session invalidates every token minted for it.
type Claims struct {
	jwt.RegisteredClaims
	UserID    uint   `json:"uid"`
	SessionID string `json:"sid"`
}

// LoginInput carries one login attempt.
type LoginInput struct {
	Email            string
	Password         string
	ClientIdentifier string
	DeviceName       string
	Platform         string
	Version          string
}

// LoginResult is a successful authentication.
type LoginResult struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
	User      *database.User    `json:"user"`
	Session   *database.Session `json:"-"`
}

// Service owns users, devices, and sessions.
type Service struct {
	db       *gorm.DB
	secret   []byte
	settings *settings.Store
	bus      *events.Bus
}

func NewService(db *gorm.DB, secret string, settingsStore *settings.Store, bus *events.Bus) *Service {
	return &Service{db: db, secret: []byte(secret), settings: settingsStore, bus: bus}
}

// CreateUser registers an account with a bcrypt-hashed password.
func (s *Service) CreateUser(email, name, password string, admin bool) (*database.User, error) {
	if email == "" {
		return nil, errs.FieldError("email", "email is required")
	}
	if len(password) < 8 {
		return nil, errs.FieldError("password", "password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errs.E(errs.Internal, "hash password", err)
	}
	user := &database.User{
		UUID:         uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		IsAdmin:      admin,
	}
	if err := s.db.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errs.Ef(errs.Conflict, "an account with email %q already exists", email)
		}
		return nil, errs.E(errs.Internal, "create user", err)
	}
	return user, nil
}

// Login verifies credentials, upserts the device for the client identifier,
// and opens a session with a signed bearer token.
func (s *Service) Login(in LoginInput) (*LoginResult, error) {
	if in.ClientIdentifier == "" {
		return nil, errs.FieldError("clientIdentifier", "client identifier is required")
	}

	var user database.User
	err := s.db.Where("email = ?", in.Email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.E(errs.Unauthenticated, "invalid credentials")
	}
	if err != nil {
		return nil, errs.E(errs.Internal, "load user", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)) != nil {
		return nil, errs.E(errs.Unauthenticated, "invalid credentials")
	}

	device, err := s.upsertDevice(user.ID, in)
	if err != nil {
		return nil, err
	}

	lifetime := s.sessionLifetime()
	now := time.Now()
	session := &database.Session{
		PublicID:   uuid.NewString(),
		UserID:     user.ID,
		DeviceID:   device.ID,
		IssuedAt:   now,
		ExpiresAt:  now.Add(lifetime),
		LastUsedAt: now,
	}
	if err := s.db.Create(session).Error; err != nil {
		return nil, errs.E(errs.Internal, "create session", err)
	}

	token, err := s.sign(user.ID, session.PublicID, session.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: session.ExpiresAt, User: &user, Session: session}, nil
}

// Refresh extends a live session and reissues its token.
func (s *Service) Refresh(token string) (*LoginResult, error) {
	user, session, err := s.Verify(token)
	if err != nil {
		return nil, err
	}

	session.ExpiresAt = time.Now().Add(s.sessionLifetime())
	session.LastUsedAt = time.Now()
	if err := s.db.Save(session).Error; err != nil {
		return nil, errs.E(errs.Internal, "extend session", err)
	}

	fresh, err := s.sign(user.ID, session.PublicID, session.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: fresh, ExpiresAt: session.ExpiresAt, User: user, Session: session}, nil
}

// Logout revokes the token's session. Already-revoked sessions are fine.
func (s *Service) Logout(token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return err
	}
	return s.RevokeSession(claims.SessionID)
}

// RevokeSession marks the session revoked and notifies subscribers so open
// connections can drop.
func (s *Service) RevokeSession(publicID string) error {
	res := s.db.Model(&database.Session{}).Where("public_id = ?", publicID).Update("revoked", true)
	if res.Error != nil {
		return errs.E(errs.Internal, "revoke session", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.E(errs.NotFound, "session")
	}
	if s.bus != nil {
		s.bus.Publish(events.Event{Type: events.EventSessionRevoked, Payload: map[string]string{"session_id": publicID}})
	}
	return nil
}

// Verify parses the token and checks its session is live. It returns the
// authenticated user and session.
func (s *Service) Verify(token string) (*database.User, *database.Session, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, nil, err
	}

	var session database.Session
	err = s.db.Where("public_id = ?", claims.SessionID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, errs.E(errs.Unauthenticated, "session not found")
	}
	if err != nil {
		return nil, nil, errs.E(errs.Internal, "load session", err)
	}
	if session.Revoked {
		return nil, nil, errs.E(errs.Unauthenticated, "session revoked")
	}
	if time.Now().After(session.ExpiresAt) {
		return nil, nil, errs.E(errs.Unauthenticated, "session expired")
	}

	var user database.User
	if err := s.db.First(&user, claims.UserID).Error; err != nil {
		return nil, nil, errs.E(errs.Unauthenticated, "user not found")
	}
	return &user, &session, nil
}

func (s *Service) upsertDevice(userID uint, in LoginInput) (*database.Device, error) {
	var device database.Device
	err := s.db.Where("user_id = ? AND client_identifier = ?", userID, in.ClientIdentifier).First(&device).Error
	if err == nil {
		device.Name = in.DeviceName
		device.Platform = in.Platform
		device.Version = in.Version
		if err := s.db.Save(&device).Error; err != nil {
			return nil, errs.E(errs.Internal, "update device", err)
		}
		return &device, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.E(errs.Internal, "load device", err)
	}
	device = database.Device{
		UUID:             uuid.NewString(),
		UserID:           userID,
		ClientIdentifier: in.ClientIdentifier,
		Name:             in.DeviceName,
		Platform:         in.Platform,
		Version:          in.Version,
	}
	if err := s.db.Create(&device).Error; err != nil {
		return nil, errs.E(errs.Internal, "create device", err)
	}
	return &device, nil
}

func (s *Service) sessionLifetime() time.Duration {
	opts, err := s.settings.Session()
	days := 30
	if err == nil && opts.LifetimeDays > 0 {
		days = opts.LifetimeDays
	}
	return time.Duration(days) * 24 * time.Hour
}

func (s *Service) sign(userID uint, sessionID string, expires time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "nexa",
		},
		UserID:    userID,
		SessionID: sessionID,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", errs.E(errs.Internal, "sign token", err)
	}
	return token, nil
}

func (s *Service) parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, errs.E(errs.Unauthenticated, "invalid token", err)
	}
	return claims, nil
}
