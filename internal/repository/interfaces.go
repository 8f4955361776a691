// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/eltiempo/internal/model"
)

// WeatherRecordRepository は保存された天気の要約の永続化インターフェース。
type WeatherRecordRepository interface {
	// Create は天気の要約を1件保存する。IDとCreatedAtは呼び出し側で設定する。
	Create(ctx context.Context, record *model.WeatherRecord) error

	// ListRecent は新しい順に最大limit件の天気の要約を返す。
	ListRecent(ctx context.Context, limit int) ([]*model.WeatherRecord, error)

	// Ping はデータベースへの疎通を確認する。
	Ping(ctx context.Context) error
}
