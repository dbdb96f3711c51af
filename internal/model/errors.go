package model

import (
	"errors"
	"fmt"
)

// ErrorKind はエラーの分類を表す。
// HTTP境界でステータスコードへの変換に使用する。
type ErrorKind int

const (
	// KindUnknown は分類不能なエラー。500として扱う。
	KindUnknown ErrorKind = iota
	// KindUnauthenticated はセッションが無い、または無効な場合のエラー。
	KindUnauthenticated
	// KindForbidden は認証済みだがロールが不足している場合のエラー。
	KindForbidden
	// KindNotFound は対象レコードが存在しない、または呼び出し元の所有でない場合のエラー。
	KindNotFound
	// KindBadInput はリクエスト入力が不正な場合のエラー。
	KindBadInput
	// KindUpstream は外部プロバイダー（決済、デプロイフック等）の呼び出し失敗。
	KindUpstream
)

// String はログ出力用の分類名を返す。
func (k ErrorKind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindBadInput:
		return "bad_input"
	case KindUpstream:
		return "upstream_failure"
	default:
		return "unknown"
	}
}

// AppError はサービス層からHTTP境界へ返す型付きエラー。
// Messageはそのままレスポンスボディのerrorフィールドになる。
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error // 原因（ログ専用、レスポンスには含めない）
}

// Error はerrorインターフェースを実装する。
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *AppError) Unwrap() error {
	return e.Err
}

// KindOf はエラーの分類を返す。AppErrorでない場合はKindUnknown。
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *AppError {
	return &AppError{Kind: KindUnauthenticated, Message: "Unauthorized"}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *AppError {
	return &AppError{Kind: KindForbidden, Message: "Forbidden"}
}

// NewNotFoundError はリソース未検出エラーを生成する。
// 存在しない場合と他人の所有である場合を区別しない。
func NewNotFoundError(resource string) *AppError {
	return &AppError{Kind: KindNotFound, Message: resource + " not found"}
}

// NewRequiredFieldError は必須フィールド欠落エラーを生成する。
func NewRequiredFieldError(field string) *AppError {
	return &AppError{Kind: KindBadInput, Message: field + " required"}
}

// NewInvalidFieldError は不正な値のフィールドエラーを生成する。
func NewInvalidFieldError(field string) *AppError {
	return &AppError{Kind: KindBadInput, Message: field + " invalid"}
}

// NewInvalidBodyError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidBodyError(err error) *AppError {
	return &AppError{Kind: KindBadInput, Message: "Invalid request body", Err: err}
}

// NewUpstreamError は外部プロバイダー呼び出し失敗エラーを生成する。
// Messageは境界で "Failed to <action>" に置き換えられる。
func NewUpstreamError(provider string, err error) *AppError {
	return &AppError{Kind: KindUpstream, Message: provider + " unavailable", Err: err}
}

// NewBadInputError は任意のメッセージを持つ入力エラーを生成する。
func NewBadInputError(message string) *AppError {
	return &AppError{Kind: KindBadInput, Message: message}
}
