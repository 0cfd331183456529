package accounts

import "share_runner/internal/model"

// Zip 按行序生成账号；代理不足时循环复用：proxies[i % len(proxies)]。
func Zip(tokens, proxies []string) []model.Account {
	out := make([]model.Account, 0, len(tokens))
	for i, t := range tokens {
		acc := model.Account{Index: i + 1, Token: t}
		if len(proxies) > 0 {
			acc.Proxy = proxies[i%len(proxies)]
		}
		out = append(out, acc)
	}
	return out
}
