package model

import "github.com/google/uuid"

// CheckID はURLパスで受け取ったIDがUUID形式であることを確認する。
// 形式が不正なIDは存在しないIDと同じくresourceのNotFoundとして扱う。
func CheckID(resource string, ids ...string) error {
	for _, id := range ids {
		if len(id) != 36 {
			return NewNotFoundError(resource)
		}
		if _, err := uuid.Parse(id); err != nil {
			return NewNotFoundError(resource)
		}
	}
	return nil
}
