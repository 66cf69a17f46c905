// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizer は管理者が投稿する記事本文のHTMLを許可リスト方式でサニタイズする。
// 記事は公開APIでそのまま配信されるため、保存前に必ず通す。
package security

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var httpsURL = regexp.MustCompile(`^https://[^\s/]+`)

// Sanitizer は記事コンテンツのサニタイズ機能のインターフェース。
type Sanitizer interface {
	// SanitizeHTML は記事本文のHTMLを安全なHTMLに変換する。同一入力に対して常に同一出力を返す。
	SanitizeHTML(rawHTML string) string
	// StripTags はタイトルや概要などプレーンテキストのフィールドから全てのタグを除去する。
	StripTags(raw string) string
}

// ContentSanitizer はbluemondayのポリシーを保持する。ポリシーは構築後に変更しないため並行利用できる。
type ContentSanitizer struct {
	body  *bluemonday.Policy
	plain *bluemonday.Policy
}

// NewContentSanitizer は記事向けのポリシーを構築する。
//   - 許可タグ: 見出し(h2-h4), p, br, hr, ul, ol, li, blockquote, pre, code, strong, em, del, a, img
//   - script, iframe, style, on*イベント属性, style属性は除去
//   - aのhrefはhttp, https, mailto と同一サイト内の相対URLを許可
//   - 外部リンクには target="_blank" と rel="noopener noreferrer" を付与
//   - imgのsrcはhttpsのみ
func NewContentSanitizer() *ContentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"h2", "h3", "h4",
		"p", "br", "hr", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "del",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(true)
	p.AllowURLSchemes("http", "https", "mailto")
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnFullyQualifiedLinks(true)
	p.RequireNoFollowOnFullyQualifiedLinks(true)

	// URLスキームの許可はポリシー全体に効くため、imgのsrcは属性の正規表現で絞る
	p.AllowAttrs("alt").OnElements("img")
	p.AllowAttrs("src").Matching(httpsURL).OnElements("img")

	return &ContentSanitizer{
		body:  p,
		plain: bluemonday.StrictPolicy(),
	}
}

// SanitizeHTML は記事本文のHTMLをサニタイズする。
func (s *ContentSanitizer) SanitizeHTML(rawHTML string) string {
	return s.body.Sanitize(rawHTML)
}

// StripTags は全てのタグを除去し、前後の空白を取り除く。
// StrictPolicyはエスケープ済みの文字列を返すため、&amp;などはそのまま残る。
func (s *ContentSanitizer) StripTags(raw string) string {
	return strings.TrimSpace(s.plain.Sanitize(raw))
}

// compile-time interface check
var _ Sanitizer = (*ContentSanitizer)(nil)
