package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/launchpad/internal/model"
)

// SessionStore はセッションの発行・破棄に必要なインターフェース。
type SessionStore interface {
	Create(ctx context.Context, session *model.Session) error
	DeleteByID(ctx context.Context, id string) error
}

// Service はCookieセッションの発行と破棄を提供する。
// ログインそのものは外部の認証プロバイダーが担い、このサービスはセッションの記録のみを扱う。
type Service struct {
	sessions SessionStore
	maxAge   time.Duration
}

// NewService はServiceを生成する。
func NewService(sessions SessionStore, maxAge time.Duration) *Service {
	return &Service{sessions: sessions, maxAge: maxAge}
}

// MaxAge はセッションの有効期間を返す。
func (s *Service) MaxAge() time.Duration {
	return s.maxAge
}

// CreateSession は指定ユーザーの新しいセッションを発行し永続化する。
func (s *Service) CreateSession(ctx context.Context, userID string) (*model.Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}

	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(s.maxAge),
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	slog.Info("session issued", slog.String("user_id", userID))
	return session, nil
}

// Logout はセッションを破棄する。セッションIDが空の場合は何もしない。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
