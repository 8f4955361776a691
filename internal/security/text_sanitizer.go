package security

import (
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は天気プロバイダーから受け取った文字列を表示用に無害化する。
// 全てのタグを除去し、プレーンテキストとして返す。
// エスケープは描画側（html/template）が行うため、ここでは実体参照を元に戻す。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はタグを一切許可しないポリシーでTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Text はタグを除去したプレーンテキストを返す。
func (s *TextSanitizer) Text(raw string) string {
	if raw == "" {
		return ""
	}
	return html.UnescapeString(s.policy.Sanitize(raw))
}

// ImageURL は画像URLとして安全な場合にそのURLを返し、それ以外は空文字列を返す。
// プロバイダーのアイコンはスキーム省略形式（//cdn.weatherapi.com/...）で返るため、
// その場合はhttpsを補う。
func (s *TextSanitizer) ImageURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}

	switch strings.ToLower(u.Scheme) {
	case "":
		u.Scheme = "https"
	case "http", "https":
	default:
		return ""
	}

	return u.String()
}
