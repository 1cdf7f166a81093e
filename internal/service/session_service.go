package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/windfall/phonoecho/internal/errors"
	"github.com/windfall/phonoecho/internal/metrics"
	"github.com/windfall/phonoecho/internal/repository"
	"github.com/windfall/phonoecho/internal/session"
)

// SessionService handles login, logout and token validation. A token binds
// a user name to one live session; there are no passwords.
type SessionService struct {
	sessions  *session.Manager
	jwtSecret []byte
	ttl       time.Duration
	metrics   *metrics.Manager
	log       zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(sessions *session.Manager, jwtSecret string, ttl time.Duration, log zerolog.Logger) *SessionService {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &SessionService{
		sessions:  sessions,
		jwtSecret: []byte(jwtSecret),
		ttl:       ttl,
		log:       log,
	}
}

// WithMetrics reports the live session count to m.
func (s *SessionService) WithMetrics(m *metrics.Manager) *SessionService {
	s.metrics = m
	return s
}

// LoginReq represents a login request.
type LoginReq struct {
	User string `json:"user"`
}

// LoginResponse is returned on successful login.
type LoginResponse struct {
	SessionID string    `json:"session_id"`
	User      string    `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login starts a session for the user and returns a token for it.
func (s *SessionService) Login(req LoginReq) (*LoginResponse, error) {
	if err := repository.ValidateUser(req.User); err != nil {
		return nil, err
	}

	sess := s.sessions.Create(req.User)
	s.metrics.SetActiveSessions(s.sessions.Len())

	expiresAt := sess.CreatedAt.Add(s.ttl)
	token, err := s.generateToken(sess, expiresAt)
	if err != nil {
		s.sessions.Delete(sess.ID)
		return nil, errors.InternalWrap("failed to generate token", err)
	}

	s.log.Info().
		Str("user", sess.User).
		Str("session_id", sess.ID).
		Msg("Session started")

	return &LoginResponse{
		SessionID: sess.ID,
		User:      sess.User,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// Logout ends a session and abandons its background work.
func (s *SessionService) Logout(sessionID string) error {
	if !s.sessions.Delete(sessionID) {
		return errors.NotFound("session")
	}
	s.metrics.SetActiveSessions(s.sessions.Len())
	s.log.Info().Str("session_id", sessionID).Msg("Session ended")
	return nil
}

// Resolve validates a token and returns its live session.
func (s *SessionService) Resolve(tokenString string) (*session.Session, error) {
	user, sessionID, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, errors.Unauthorized("invalid or expired token")
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, errors.Unauthorized("session has ended")
	}
	if sess.User != user {
		return nil, errors.Unauthorized("token does not match session")
	}
	return sess, nil
}

// ValidateToken parses and validates a JWT token string, returning the user
// and session ID.
func (s *SessionService) ValidateToken(tokenString string) (user, sessionID string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", fmt.Errorf("invalid token claims")
	}

	user, ok = claims["sub"].(string)
	if !ok {
		return "", "", fmt.Errorf("invalid subject claim")
	}
	sessionID, ok = claims["sid"].(string)
	if !ok {
		return "", "", fmt.Errorf("invalid session claim")
	}

	return user, sessionID, nil
}

func (s *SessionService) generateToken(sess *session.Session, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub": sess.User,
		"sid": sess.ID,
		"iat": sess.CreatedAt.Unix(),
		"exp": expiresAt.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
