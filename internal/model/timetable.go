package model

import "time"

// TimetableEntry はユーザーの時間割エントリを表す。
type TimetableEntry struct {
	ID        string
	OwnerID   string
	Title     string
	DayOfWeek int    // 0=日曜日 … 6=土曜日
	StartsAt  string // HH:MM
	EndsAt    string // HH:MM
	Location  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TimetableInput は時間割エントリの作成・更新の入力を表す。
type TimetableInput struct {
	Title     *string
	DayOfWeek *int
	StartsAt  *string
	EndsAt    *string
	Location  *string
}
