package accounts

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"share_runner/internal/model"
)

// ReadLines 按行读取，去掉首尾空白并跳过空行。
func ReadLines(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []string
	scanner := bufio.NewScanner(bytes.NewReader(b))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func ReadTokens(path string) ([]string, error) {
	tokens, err := ReadLines(path)
	if err != nil {
		return nil, fmt.Errorf("read tokens: %w", err)
	}
	return tokens, nil
}

// ReadProxies 文件不存在时返回 (nil, os.ErrNotExist 包装)，调用方可按“不使用代理”处理。
func ReadProxies(path string) ([]string, error) {
	lines, err := ReadLines(path)
	if err != nil {
		return nil, fmt.Errorf("read proxies: %w", err)
	}
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, NormalizeProxy(l))
	}
	return out, nil
}

// ReadCredentials 每行 email:password。
func ReadCredentials(path string) ([]model.Credential, error) {
	lines, err := ReadLines(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	out := make([]model.Credential, 0, len(lines))
	for i, l := range lines {
		email, password, ok := strings.Cut(l, ":")
		email = strings.TrimSpace(email)
		if !ok || email == "" || password == "" {
			return nil, fmt.Errorf("read credentials: line %d: expected email:password", i+1)
		}
		out = append(out, model.Credential{Email: email, Password: password})
	}
	return out, nil
}

// WriteTokens 先写临时文件再 rename，读方不会看到写了一半的 token 列表。
func WriteTokens(path string, tokens []string) error {
	if len(tokens) == 0 {
		return errors.New("no tokens to write")
	}
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	var buf bytes.Buffer
	for _, t := range tokens {
		buf.WriteString(strings.TrimSpace(t))
		buf.WriteByte('\n')
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// NormalizeProxy 没有 scheme 的 host:port 按 http 代理处理。
func NormalizeProxy(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if strings.Contains(p, "://") {
		return p
	}
	return "http://" + p
}
