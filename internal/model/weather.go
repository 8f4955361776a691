package model

import "time"

// WeatherSummary は天気プロバイダーのレスポンスから正規化した現在の天気を表す。
// weather.Client のみが生成し、生成後は変更しない。
type WeatherSummary struct {
	City          string  `json:"city"`
	Country       string  `json:"country"`
	TemperatureC  float64 `json:"temperature"`
	ConditionCode int     `json:"condition"`
	ConditionText string  `json:"conditionText"`
	IconURL       string  `json:"icon"`
}

// SaveRequestPayload は保存エンドポイントへ送信するWeatherSummaryの射影。
// 保存呼び出しごとに生成し、保持しない。
type SaveRequestPayload struct {
	City        string  `json:"city"`
	Country     string  `json:"country"`
	Temperature float64 `json:"temperature"`
}

// NewSaveRequestPayload はWeatherSummaryから保存用ペイロードを組み立てる。
func NewSaveRequestPayload(s *WeatherSummary) SaveRequestPayload {
	return SaveRequestPayload{
		City:        s.City,
		Country:     s.Country,
		Temperature: s.TemperatureC,
	}
}

// SearchPhase は検索フォームのフェーズを表す。
type SearchPhase string

const (
	// PhaseIdle は検索を受け付け可能な状態。
	PhaseIdle SearchPhase = "idle"
	// PhaseLoading は検索リクエストが実行中の状態。
	PhaseLoading SearchPhase = "loading"
)

// SearchError はフォームのエラー表示欄の状態。
type SearchError struct {
	Present bool   `json:"error"`
	Message string `json:"message"`
}

// SearchState は検索フォームの一時的な状態のスナップショット。
// Result は直前に成功した検索結果で、後続の検索が失敗しても保持される。
type SearchState struct {
	Query  string          `json:"city"`
	Phase  SearchPhase     `json:"phase"`
	Err    SearchError     `json:"error"`
	Result *WeatherSummary `json:"weather"`
}

// Loading は検索実行中かどうかを返す。
func (s SearchState) Loading() bool {
	return s.Phase == PhaseLoading
}

// WeatherRecord は保存エンドポイントが永続化した天気の要約。
type WeatherRecord struct {
	ID          string    `db:"id" json:"id"`
	City        string    `db:"city" json:"city"`
	Country     string    `db:"country" json:"country"`
	Temperature float64   `db:"temperature" json:"temperature"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
