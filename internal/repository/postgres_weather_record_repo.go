package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/hitoshi/eltiempo/internal/model"
)

// PostgresWeatherRecordRepo はPostgreSQLを使用した天気の要約リポジトリ。
type PostgresWeatherRecordRepo struct {
	db *sqlx.DB
}

// NewPostgresWeatherRecordRepo はPostgresWeatherRecordRepoを生成する。
func NewPostgresWeatherRecordRepo(db *sqlx.DB) *PostgresWeatherRecordRepo {
	return &PostgresWeatherRecordRepo{db: db}
}

// Create は天気の要約を1件保存する。
func (r *PostgresWeatherRecordRepo) Create(ctx context.Context, record *model.WeatherRecord) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO weather_records (id, city, country, temperature, created_at)
		 VALUES (:id, :city, :country, :temperature, :created_at)`,
		record,
	)
	if err != nil {
		return fmt.Errorf("天気データの保存に失敗しました: %w", err)
	}
	return nil
}

// ListRecent は新しい順に最大limit件の天気の要約を返す。
func (r *PostgresWeatherRecordRepo) ListRecent(ctx context.Context, limit int) ([]*model.WeatherRecord, error) {
	records := []*model.WeatherRecord{}
	err := r.db.SelectContext(ctx, &records,
		`SELECT id, city, country, temperature, created_at
		 FROM weather_records
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("天気データ一覧の取得に失敗しました: %w", err)
	}
	return records, nil
}

// Ping はデータベースへの疎通を確認する。
func (r *PostgresWeatherRecordRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
