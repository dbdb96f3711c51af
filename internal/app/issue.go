package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/launchpad/internal/auth"
	"github.com/hitoshi/launchpad/internal/config"
	"github.com/hitoshi/launchpad/internal/model"
	"github.com/hitoshi/launchpad/internal/repository"
)

// errEmailRequired は発行系サブコマンドにメールアドレスが渡されなかった場合のエラー。
var errEmailRequired = errors.New("email argument is required")

// userByEmail はメールアドレスでユーザーを引くためのインターフェース。
type userByEmail interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

// lookupUser はemailのユーザーを取得する。存在しない場合はエラーを返す。
func lookupUser(ctx context.Context, users userByEmail, email string) (*model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, errEmailRequired
	}
	u, err := users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if u == nil {
		return nil, fmt.Errorf("user not found: %s", email)
	}
	return u, nil
}

// issueToken はemailのユーザーにBearerトークンを発行し、wに1行で書き出す。
func issueToken(ctx context.Context, w io.Writer, users userByEmail, issuer *auth.TokenIssuer, email string, ttl time.Duration) error {
	u, err := lookupUser(ctx, users, email)
	if err != nil {
		return err
	}
	token, err := issuer.Issue(u.ID, ttl)
	if err != nil {
		return err
	}

	slog.Info("bearer token issued",
		slog.String("user_id", u.ID),
		slog.Duration("ttl", ttl),
	)
	_, err = fmt.Fprintln(w, token)
	return err
}

// issueSession はemailのユーザーにCookieセッションを発行し、
// ブラウザに設定するCookieの値をwに書き出す。
func issueSession(ctx context.Context, w io.Writer, users userByEmail, sessions *auth.Service, email string) error {
	u, err := lookupUser(ctx, users, email)
	if err != nil {
		return err
	}
	s, err := sessions.CreateSession(ctx, u.ID)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "session_id=%s; Max-Age=%d; Expires=%s\n",
		s.ID, int(sessions.MaxAge().Seconds()), s.ExpiresAt.UTC().Format(time.RFC1123))
	return err
}

// runIssueToken は "token <email>" サブコマンドを実行する。
// トークンの有効期間はSESSION_MAX_AGEに従う。
func runIssueToken(cfg *config.Config, w io.Writer, args []string) error {
	if len(args) == 0 {
		return errEmailRequired
	}
	issuer, err := auth.NewTokenIssuer(cfg.SessionSecret)
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	return issueToken(context.Background(), w, repository.NewPostgresUserRepo(db), issuer, args[0], cfg.SessionMaxAge)
}

// runIssueSession は "session <email>" サブコマンドを実行する。
func runIssueSession(cfg *config.Config, w io.Writer, args []string) error {
	if len(args) == 0 {
		return errEmailRequired
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	sessions := auth.NewService(repository.NewPostgresSessionRepo(db), cfg.SessionMaxAge)
	return issueSession(context.Background(), w, repository.NewPostgresUserRepo(db), sessions, args[0])
}
