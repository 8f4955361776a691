// Package view は検索フォームの状態をHTMLとJSONに変換する。
// 表示に必要なカテゴリと画像は描画のたびに状態コードから求める。
package view

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strconv"

	"github.com/hitoshi/eltiempo/internal/condition"
	"github.com/hitoshi/eltiempo/internal/model"
	"github.com/hitoshi/eltiempo/internal/security"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page はフォームページのテンプレートに渡す値。
type Page struct {
	Query        string
	Loading      bool
	HasError     bool
	ErrorMessage string
	Weather      *WeatherView

	// CSRFToken は検索と保存のフォームにhidden項目として埋め込む。
	CSRFToken string
}

// WeatherView は表示用に整形した天気。
type WeatherView struct {
	City          string `json:"city"`
	Country       string `json:"country"`
	Temperature   string `json:"temperature"`
	ConditionCode int    `json:"condition"`
	ConditionText string `json:"conditionText"`
	Category      string `json:"category"`
	ImageURL      string `json:"image"`
}

// StateResponse は /api/state のレスポンス。
type StateResponse struct {
	City    string            `json:"city"`
	Phase   model.SearchPhase `json:"phase"`
	Loading bool              `json:"loading"`
	Error   model.SearchError `json:"error"`
	Weather *WeatherView      `json:"weather"`
}

// Renderer はフォームページを描画する。
type Renderer struct {
	tmpl      *template.Template
	sanitizer *security.TextSanitizer
}

// NewRenderer は埋め込みテンプレートを読み込んでRendererを生成する。
func NewRenderer(sanitizer *security.TextSanitizer) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("テンプレートの読み込みに失敗しました: %w", err)
	}
	return &Renderer{tmpl: tmpl, sanitizer: sanitizer}, nil
}

// BuildPage は状態のスナップショットからページの値を組み立てる。
func (r *Renderer) BuildPage(state model.SearchState) Page {
	return Page{
		Query:        state.Query,
		Loading:      state.Loading(),
		HasError:     state.Err.Present,
		ErrorMessage: state.Err.Message,
		Weather:      r.weatherView(state.Result),
	}
}

// BuildState は状態のスナップショットから /api/state のレスポンスを組み立てる。
func (r *Renderer) BuildState(state model.SearchState) StateResponse {
	return StateResponse{
		City:    state.Query,
		Phase:   state.Phase,
		Loading: state.Loading(),
		Error:   state.Err,
		Weather: r.weatherView(state.Result),
	}
}

// Render はフォームページをwに書き出す。csrfTokenは両フォームに埋め込まれる。
func (r *Renderer) Render(w io.Writer, state model.SearchState, csrfToken string) error {
	page := r.BuildPage(state)
	page.CSRFToken = csrfToken
	if err := r.tmpl.ExecuteTemplate(w, "index.html", page); err != nil {
		return fmt.Errorf("テンプレートの描画に失敗しました: %w", err)
	}
	return nil
}

func (r *Renderer) weatherView(s *model.WeatherSummary) *WeatherView {
	if s == nil {
		return nil
	}

	category, image := condition.Classify(s.ConditionCode, s.IconURL)

	return &WeatherView{
		City:          r.sanitizer.Text(s.City),
		Country:       r.sanitizer.Text(s.Country),
		Temperature:   FormatTemperature(s.TemperatureC),
		ConditionCode: s.ConditionCode,
		ConditionText: r.sanitizer.Text(s.ConditionText),
		Category:      category.String(),
		ImageURL:      r.sanitizer.ImageURL(image),
	}
}

// FormatTemperature は気温を余分な桁なしで文字列にする（21 → "21", 21.5 → "21.5"）。
func FormatTemperature(c float64) string {
	return strconv.FormatFloat(c, 'f', -1, 64)
}
