package model

type Account struct {
	// Index 从 1 开始，对应 token 文件中的行序。
	Index int    `json:"index"`
	Token string `json:"-"`
	Proxy string `json:"proxy,omitempty"`
}

// TokenPrefix 返回 token 前 10 个字符，日志和存储里只出现这个前缀。
func (a Account) TokenPrefix() string {
	return MaskToken(a.Token)
}

func MaskToken(token string) string {
	const n = 10
	if len(token) <= n {
		return token
	}
	return token[:n]
}

type Credential struct {
	Email    string `json:"email"`
	Password string `json:"-"`
}
