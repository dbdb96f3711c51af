// Package timetable は時間割エントリのドメインロジックを提供する。
package timetable

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/launchpad/internal/model"
	"github.com/hitoshi/launchpad/internal/repository"
)

const (
	maxTitleLength    = 100
	maxLocationLength = 100
	clockLayout       = "15:04"
)

// PlainTextSanitizer はタグを全て除去するサニタイザーのインターフェース。
type PlainTextSanitizer interface {
	PlainText(raw string) string
}

// Service は時間割のサービス層。全ての操作は所有者で絞り込む。
type Service struct {
	repo      repository.TimetableRepository
	sanitizer PlainTextSanitizer
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.TimetableRepository, sanitizer PlainTextSanitizer) *Service {
	return &Service{repo: repo, sanitizer: sanitizer, now: time.Now}
}

// List は所有者のエントリを曜日・開始時刻順で返す。
func (s *Service) List(ctx context.Context, ownerID string) ([]*model.TimetableEntry, error) {
	entries, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("時間割の取得に失敗しました: %w", err)
	}
	return entries, nil
}

// Create はエントリを作成する。title, dayOfWeek, startsAt, endsAtは必須。
func (s *Service) Create(ctx context.Context, ownerID string, in model.TimetableInput) (*model.TimetableEntry, error) {
	switch {
	case in.Title == nil:
		return nil, model.NewRequiredFieldError("title")
	case in.DayOfWeek == nil:
		return nil, model.NewRequiredFieldError("dayOfWeek")
	case in.StartsAt == nil:
		return nil, model.NewRequiredFieldError("startsAt")
	case in.EndsAt == nil:
		return nil, model.NewRequiredFieldError("endsAt")
	}

	clean, err := s.normalize(in)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	e := &model.TimetableEntry{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     *clean.Title,
		DayOfWeek: *clean.DayOfWeek,
		StartsAt:  *clean.StartsAt,
		EndsAt:    *clean.EndsAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if clean.Location != nil {
		e.Location = *clean.Location
	}

	if err := s.repo.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("時間割の作成に失敗しました: %w", err)
	}
	return e, nil
}

// Update はエントリを部分更新する。
// 開始・終了時刻の前後関係を保証するため、時刻は両方同時に指定する必要がある。
func (s *Service) Update(ctx context.Context, ownerID, id string, in model.TimetableInput) (*model.TimetableEntry, error) {
	if err := model.CheckID("Entry", id); err != nil {
		return nil, err
	}
	if in == (model.TimetableInput{}) {
		return nil, model.NewBadInputError("No fields to update")
	}
	if (in.StartsAt == nil) != (in.EndsAt == nil) {
		return nil, model.NewBadInputError("startsAt and endsAt must be updated together")
	}

	clean, err := s.normalize(in)
	if err != nil {
		return nil, err
	}

	e, err := s.repo.Update(ctx, id, ownerID, clean)
	if err != nil {
		return nil, fmt.Errorf("時間割の更新に失敗しました: %w", err)
	}
	if e == nil {
		return nil, model.NewNotFoundError("Entry")
	}
	return e, nil
}

// Delete はエントリを削除する。
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	if err := model.CheckID("Entry", id); err != nil {
		return err
	}
	deleted, err := s.repo.DeleteByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		return fmt.Errorf("時間割の削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewNotFoundError("Entry")
	}
	return nil
}

func (s *Service) normalize(in model.TimetableInput) (model.TimetableInput, error) {
	var out model.TimetableInput

	if in.Title != nil {
		title := s.sanitizer.PlainText(*in.Title)
		if title == "" {
			return out, model.NewRequiredFieldError("title")
		}
		if utf8.RuneCountInString(title) > maxTitleLength {
			return out, model.NewInvalidFieldError("title")
		}
		out.Title = &title
	}
	if in.DayOfWeek != nil {
		if *in.DayOfWeek < 0 || *in.DayOfWeek > 6 {
			return out, model.NewInvalidFieldError("dayOfWeek")
		}
		day := *in.DayOfWeek
		out.DayOfWeek = &day
	}
	if in.StartsAt != nil && in.EndsAt != nil {
		start, err := parseClock(*in.StartsAt)
		if err != nil {
			return out, model.NewInvalidFieldError("startsAt")
		}
		end, err := parseClock(*in.EndsAt)
		if err != nil {
			return out, model.NewInvalidFieldError("endsAt")
		}
		if !start.Before(end) {
			return out, model.NewBadInputError("endsAt must be after startsAt")
		}
		startsAt, endsAt := start.Format(clockLayout), end.Format(clockLayout)
		out.StartsAt, out.EndsAt = &startsAt, &endsAt
	}
	if in.Location != nil {
		loc := s.sanitizer.PlainText(*in.Location)
		if utf8.RuneCountInString(loc) > maxLocationLength {
			return out, model.NewInvalidFieldError("location")
		}
		out.Location = &loc
	}
	return out, nil
}

// parseClock はHH:MM形式の時刻を解析する。
func parseClock(s string) (time.Time, error) {
	if len(s) != len(clockLayout) {
		return time.Time{}, fmt.Errorf("invalid clock %q", s)
	}
	return time.Parse(clockLayout, s)
}
