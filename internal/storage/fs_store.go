package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

var _ BlobStore = (*FSStore)(nil)

// FSStore сохраняет файлы на локальный том, раздаваемый по публичному
// базовому URL (обычно через reverse proxy перед сервисом).
type FSStore struct {
	savePath      string
	publicBaseURL string
	logger        *zap.Logger
}

// NewFSStore создает файловое хранилище.
func NewFSStore(savePath, publicBaseURL string, logger *zap.Logger) (*FSStore, error) {
	if savePath == "" {
		return nil, errors.New("blob save path is not configured")
	}
	if publicBaseURL == "" {
		return nil, errors.New("blob public base URL is not configured")
	}
	if err := os.MkdirAll(savePath, 0o755); err != nil {
		return nil, fmt.Errorf("ошибка создания каталога хранилища: %w", err)
	}
	return &FSStore{
		savePath:      savePath,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
		logger:        logger.Named("FSStore"),
	}, nil
}

// Put пишет файл и возвращает его публичный URL.
func (s *FSStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrBlobSaveFailed)
	}
	filePath := filepath.Join(s.savePath, key)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBlobSaveFailed, err)
	}
	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		s.logger.Error("Failed to save blob to file", zap.String("path", filePath), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrBlobSaveFailed, err)
	}

	url := s.publicBaseURL + "/" + key
	s.logger.Debug("Blob saved", zap.String("path", filePath), zap.Int("size_bytes", len(data)))
	return url, nil
}
