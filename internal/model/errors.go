// Package model はドメインモデルを定義する。
package model

import "fmt"

// フォームに表示するエラーメッセージ。
const (
	MsgCityRequired   = "El campo ciudad es obligatorio"
	MsgFetchFailed    = "No se pudo obtener el clima, intente nuevamente"
	MsgNoWeatherData  = "No hay datos meteorológicos para guardar"
	MsgSaveRejected   = "Error al guardar los datos en la base de datos"
	MsgInvalidPayload = "La respuesta del proveedor del clima no es válida"
)

// WeatherErrorKind は天気取得エラーの種別。
type WeatherErrorKind int

const (
	// KindValidation は入力検証エラー（ネットワーク呼び出しなし）。
	KindValidation WeatherErrorKind = iota
	// KindTransport はネットワーク障害または2xx以外のHTTPステータス。
	KindTransport
	// KindDomain はプロバイダーがレスポンスボディで返したエラー。
	KindDomain
	// KindParse は成功レスポンスの形式不正。
	KindParse
)

// String はエラー種別の名前を返す。メトリクスのラベルにも使う。
func (k WeatherErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	case KindDomain:
		return "domain"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// WeatherError は天気取得の失敗を表す。
// Message はそのままフォームのエラー欄に表示される。
type WeatherError struct {
	Kind    WeatherErrorKind
	Message string
	Err     error
}

// Error はerrorインターフェースを実装する。
func (e *WeatherError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *WeatherError) Unwrap() error {
	return e.Err
}

// NewValidationError は都市名未入力エラーを生成する。
func NewValidationError() *WeatherError {
	return &WeatherError{Kind: KindValidation, Message: MsgCityRequired}
}

// NewTransportError は通信失敗エラーを生成する。causeはログ用に保持する。
func NewTransportError(cause error) *WeatherError {
	return &WeatherError{Kind: KindTransport, Message: MsgFetchFailed, Err: cause}
}

// NewDomainError はプロバイダーが返したエラーメッセージをそのまま保持する。
func NewDomainError(providerMessage string) *WeatherError {
	return &WeatherError{Kind: KindDomain, Message: providerMessage}
}

// NewParseError はレスポンス形式不正エラーを生成する。
func NewParseError(cause error) *WeatherError {
	return &WeatherError{Kind: KindParse, Message: MsgInvalidPayload, Err: cause}
}

// SaveErrorKind は保存エラーの種別。
type SaveErrorKind int

const (
	// SaveKindNoData は保存対象の検索結果がない。
	SaveKindNoData SaveErrorKind = iota
	// SaveKindRejected は保存エンドポイントが2xx以外を返した、または到達できなかった。
	SaveKindRejected
)

// String はエラー種別の名前を返す。
func (k SaveErrorKind) String() string {
	switch k {
	case SaveKindNoData:
		return "no_data"
	case SaveKindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// SaveError は保存処理の失敗を表す。フォームには表示せず、ログにのみ記録する。
type SaveError struct {
	Kind    SaveErrorKind
	Message string
	Err     error
}

// Error はerrorインターフェースを実装する。
func (e *SaveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *SaveError) Unwrap() error {
	return e.Err
}

// NewNoDataError は保存対象なしエラーを生成する。
func NewNoDataError() *SaveError {
	return &SaveError{Kind: SaveKindNoData, Message: MsgNoWeatherData}
}

// NewSaveRejectedError は保存拒否エラーを生成する。
func NewSaveRejectedError(cause error) *SaveError {
	return &SaveError{Kind: SaveKindRejected, Message: MsgSaveRejected, Err: cause}
}

// APIError は保存エンドポイントの統一エラーフォーマットを表す。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, system
	Action   string // 利用者向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidWeatherRecord = "INVALID_WEATHER_RECORD"
	ErrCodeInvalidJSON          = "INVALID_JSON"
)

// NewInvalidWeatherRecordError は保存ペイロードの検証エラーを生成する。
func NewInvalidWeatherRecordError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidWeatherRecord,
		Message:  fmt.Sprintf("無効な天気データです: %s", reason),
		Category: "validation",
		Action:   "city と country を指定してください。",
	}
}

// NewInvalidJSONError はリクエストボディのJSON不正エラーを生成する。
func NewInvalidJSONError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidJSON,
		Message:  "リクエストボディのJSONが不正です。",
		Category: "validation",
		Action:   "{\"city\", \"country\", \"temperature\"} の形式で送信してください。",
	}
}

// ErrCodeInvalidLimit は一覧取得の件数指定が不正であることを表す。
const ErrCodeInvalidLimit = "INVALID_LIMIT"

// NewInvalidLimitError は件数指定の検証エラーを生成する。
func NewInvalidLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidLimit,
		Message:  "limit は正の整数で指定してください。",
		Category: "validation",
		Action:   "limit を 1〜100 の整数で指定してください。",
	}
}
