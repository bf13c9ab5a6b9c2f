package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrBlobSaveFailed - ошибка сохранения файла в хранилище.
var ErrBlobSaveFailed = errors.New("blob save failed")

// ErrVerificationFailed - публичный URL не отвечает после загрузки.
var ErrVerificationFailed = errors.New("blob verification failed")

// BlobStore - контракт хранилища медиа-файлов с раздачей по публичному URL.
// Реализации обязаны быть долговечными: эфемерные провайдерские URL
// сюда не попадают, в хранилище пишутся только сами байты.
type BlobStore interface {
	// Put сохраняет байты под ключом и возвращает публичный URL.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Verifier выполняет проверочный запрос к публичному URL.
// Выделен в интерфейс, чтобы тесты не ходили в сеть.
type Verifier interface {
	Verify(ctx context.Context, url string) error
}

// HTTPVerifier проверяет доступность URL HEAD-запросом.
type HTTPVerifier struct {
	client *http.Client
}

// NewHTTPVerifier создает верификатор с разумным таймаутом.
func NewHTTPVerifier() *HTTPVerifier {
	return &HTTPVerifier{client: &http.Client{Timeout: 15 * time.Second}}
}

// Verify возвращает ErrVerificationFailed, если URL не отдаёт 2xx.
func (v *HTTPVerifier) Verify(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrVerificationFailed, resp.StatusCode)
	}
	return nil
}
