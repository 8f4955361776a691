// Package store は保存エンドポイントのドメインロジックを提供する。
// フォームから送られた天気の要約を検証して永続化する。
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/eltiempo/internal/model"
	"github.com/hitoshi/eltiempo/internal/repository"
)

// 一覧取得の件数。
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Service は保存エンドポイントのサービス層。
type Service struct {
	repo   repository.WeatherRecordRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.WeatherRecordRepository, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// Save は天気の要約を検証し、IDと作成日時を付与して保存する。
// cityまたはcountryが空白のみの場合は *model.APIError を返す。
func (s *Service) Save(ctx context.Context, payload model.SaveRequestPayload) (*model.WeatherRecord, error) {
	city := strings.TrimSpace(payload.City)
	country := strings.TrimSpace(payload.Country)
	if city == "" {
		return nil, model.NewInvalidWeatherRecordError("city が空です")
	}
	if country == "" {
		return nil, model.NewInvalidWeatherRecordError("country が空です")
	}

	record := &model.WeatherRecord{
		ID:          uuid.NewString(),
		City:        city,
		Country:     country,
		Temperature: payload.Temperature,
		CreatedAt:   s.now().UTC(),
	}

	if err := s.repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("天気データの保存に失敗しました: %w", err)
	}

	s.logger.Info("weather record stored",
		slog.String("id", record.ID),
		slog.String("city", record.City),
		slog.String("country", record.Country),
	)

	return record, nil
}

// ListRecent は新しい順に天気の要約を返す。
// limitが0以下の場合はDefaultListLimit、MaxListLimitを超える場合はMaxListLimitとする。
func (s *Service) ListRecent(ctx context.Context, limit int) ([]*model.WeatherRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	records, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("天気データ一覧の取得に失敗しました: %w", err)
	}
	return records, nil
}

// Ping は保存先の疎通を確認する。
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
