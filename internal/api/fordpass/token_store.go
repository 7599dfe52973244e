package fordpass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// DefaultTokenFile 默认令牌文件位置
const DefaultTokenFile = "fordpass_token.txt"

// DefaultLegacyTokenFiles 旧版本使用过的令牌文件，清除令牌时一并删除
var DefaultLegacyTokenFiles = []string{
	"/tmp/fordpass_token.txt",
	"/tmp/token.txt",
}

// TokenStore 令牌持久化接口
// 每个位置最多保存一条令牌记录
type TokenStore interface {
	// Load 读取令牌，不存在时返回 ErrTokenNotFound，内容损坏时返回 ErrMalformedToken
	Load(ctx context.Context) (*Token, error)
	// Save 覆盖保存令牌
	Save(ctx context.Context, token *Token) error
	// Clear 删除令牌，不存在时不报错
	Clear(ctx context.Context) error
}

// FileStore 基于 JSON 文件的令牌存储
type FileStore struct {
	path        string
	legacyPaths []string
}

// NewFileStore 创建文件令牌存储，未指定旧文件时使用 DefaultLegacyTokenFiles
func NewFileStore(path string, legacyPaths ...string) *FileStore {
	if path == "" {
		path = DefaultTokenFile
	}
	if len(legacyPaths) == 0 {
		legacyPaths = DefaultLegacyTokenFiles
	}
	return &FileStore{path: path, legacyPaths: legacyPaths}
}

// Path 令牌文件路径
func (f *FileStore) Path() string {
	return f.path
}

// Load 加载令牌
func (f *FileStore) Load(ctx context.Context) (*Token, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("read token file: %w", err)
	}

	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedToken, f.path, err)
	}
	return &token, nil
}

// Save 保存令牌
func (f *FileStore) Save(ctx context.Context, token *Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

// Clear 删除令牌文件及旧版本文件
func (f *FileStore) Clear(ctx context.Context) error {
	var errs []error
	for _, p := range append(append([]string{}, f.legacyPaths...), f.path) {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}
