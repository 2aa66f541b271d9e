package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrInvalidKey     = errors.New("invalid object key")
)

// Store 키-바이트 객체 저장소 (매치 보고서 보관용)
type Store interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	URL(key string) string
}

// LocalStore 로컬 디스크 저장소. S3 설정이 없을 때 사용
type LocalStore struct {
	basePath string
}

// NewLocalStore 스토리지 생성
func NewLocalStore(basePath string) *LocalStore {
	return &LocalStore{
		basePath: basePath,
	}
}

// Put 파일 저장. 임시 파일에 쓴 뒤 rename 해서 반쯤 쓰인 파일이 보이지 않게 한다
func (s *LocalStore) Put(_ context.Context, key string, body []byte, _ string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to save file: %w", err)
	}
	return nil
}

// Get 파일 읽기
func (s *LocalStore) Get(_ context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}

	body, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return body, nil
}

// URL 파일 URL 생성
func (s *LocalStore) URL(key string) string {
	return fmt.Sprintf("/storage/%s", key)
}

// path 저장소 밖으로 나가는 키는 거부
func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if key == "" || strings.Contains(key, "..") || clean == "/" {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.basePath, clean), nil
}
