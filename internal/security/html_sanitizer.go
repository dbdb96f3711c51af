package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer はユーザー入力テキストのサニタイザ。
// bluemondayのPolicyはゴルーチンセーフなため、一つのインスタンスを共有する。
type Sanitizer struct {
	rich  *bluemonday.Policy
	plain *bluemonday.Policy
}

// NewSanitizer はSanitizerを生成する。
//
// リッチテキスト（プロジェクト説明）で許可する要素:
// p, br, strong, em, code, pre, ul, ol, li, blockquote, h2, h3, a[href]。
// リンクは絶対URLのみ許可し、rel="nofollow noopener noreferrer"を付与する。
func NewSanitizer() *Sanitizer {
	rich := bluemonday.NewPolicy()
	rich.AllowElements("p", "br", "strong", "em", "code", "pre", "ul", "ol", "li", "blockquote", "h2", "h3")
	rich.AllowAttrs("href").OnElements("a")
	rich.AllowURLSchemes("https", "http", "mailto")
	rich.AllowRelativeURLs(false)
	rich.RequireNoFollowOnLinks(true)
	rich.RequireNoReferrerOnLinks(true)
	rich.AddTargetBlankToFullyQualifiedLinks(true)

	return &Sanitizer{
		rich:  rich,
		plain: bluemonday.StrictPolicy(),
	}
}

// RichText は説明文などのHTMLを許可リストに従ってサニタイズする。
func (s *Sanitizer) RichText(raw string) string {
	return strings.TrimSpace(s.rich.Sanitize(raw))
}

// PlainText は全てのタグを除去したテキストを返す。名前やタイトルに使用する。
func (s *Sanitizer) PlainText(raw string) string {
	return strings.TrimSpace(s.plain.Sanitize(raw))
}
