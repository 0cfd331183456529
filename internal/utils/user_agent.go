package utils

import "strings"

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// DefaultUserAgent 返回默认的桌面 Chrome UA。
func DefaultUserAgent() string {
	return defaultUserAgent
}

// NormalizeUserAgent 入参为空或不像浏览器 UA 时，返回默认 UA。
func NormalizeUserAgent(ua string) string {
	v := strings.TrimSpace(ua)
	if v == "" {
		return defaultUserAgent
	}
	if looksLikeBrowserUA(v) {
		return v
	}
	return defaultUserAgent
}

func looksLikeBrowserUA(ua string) bool {
	s := strings.ToLower(ua)
	if !strings.HasPrefix(s, "mozilla/") {
		return false
	}
	return strings.Contains(s, "chrome") || strings.Contains(s, "firefox") || strings.Contains(s, "safari")
}
