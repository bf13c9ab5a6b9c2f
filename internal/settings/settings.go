package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"fable-server/internal/models"
	"fable-server/internal/repository"
)

const settingsCacheKey = "generation:settings"

const getSettingsQuery = `
SELECT data FROM generation_settings WHERE id = 1`

const upsertSettingsQuery = `
INSERT INTO generation_settings (id, data, updated_at)
VALUES (1, $1, NOW())
ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`

// Service отдает динамические настройки генерации. Источник истины - строка
// в Postgres, прогретая копия держится в Redis с TTL. При недоступности
// обоих источников возвращаются значения по умолчанию: генерация не должна
// падать из-за отсутствия настроек.
type Service struct {
	db       repository.DBTX
	rdb      *redis.Client
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewService создает сервис настроек. rdb может быть nil - тогда кэш отключен.
func NewService(db repository.DBTX, rdb *redis.Client, cacheTTL time.Duration, logger *zap.Logger) *Service {
	return &Service{
		db:       db,
		rdb:      rdb,
		cacheTTL: cacheTTL,
		logger:   logger.Named("SettingsService"),
	}
}

// Get возвращает актуальные настройки генерации.
func (s *Service) Get(ctx context.Context) models.GenerationSettings {
	if s.rdb != nil {
		cached, err := s.rdb.Get(ctx, settingsCacheKey).Bytes()
		if err == nil {
			var st models.GenerationSettings
			if jsonErr := json.Unmarshal(cached, &st); jsonErr == nil {
				return st
			}
			s.logger.Warn("Поврежденный кэш настроек, перечитываем из БД")
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn("Ошибка чтения кэша настроек", zap.Error(err))
		}
	}

	var data []byte
	err := pgxscan.Get(ctx, s.db, &data, getSettingsQuery)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			s.logger.Error("Ошибка загрузки настроек из БД, используются значения по умолчанию", zap.Error(err))
		}
		return models.DefaultGenerationSettings()
	}

	var st models.GenerationSettings
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Error("Ошибка разбора настроек из БД, используются значения по умолчанию", zap.Error(err))
		return models.DefaultGenerationSettings()
	}

	s.cache(ctx, data)
	return st
}

// Update сохраняет настройки в БД и инвалидирует кэш.
func (s *Service) Update(ctx context.Context, st models.GenerationSettings) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("ошибка сериализации настроек: %w", err)
	}

	if _, err := s.db.Exec(ctx, upsertSettingsQuery, data); err != nil {
		return fmt.Errorf("ошибка сохранения настроек: %w", err)
	}

	if s.rdb != nil {
		if err := s.rdb.Del(ctx, settingsCacheKey).Err(); err != nil {
			s.logger.Warn("Ошибка инвалидации кэша настроек", zap.Error(err))
		}
	}
	return nil
}

func (s *Service) cache(ctx context.Context, data []byte) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Set(ctx, settingsCacheKey, data, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("Ошибка записи кэша настроек", zap.Error(err))
	}
}
