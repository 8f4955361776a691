// Package condition は天気の状態コードを表示カテゴリに分類する。
package condition

// Category は表示用の天気カテゴリ。
type Category int

const (
	// Unclassified はどのカテゴリにも該当しない状態コード。
	Unclassified Category = iota
	// Clear は晴れ。
	Clear
	// PartlyCloudy は一部曇り。
	PartlyCloudy
	// Rainy は雨。
	Rainy
	// Windy は風・雪・霧などその他の荒天。
	Windy
)

// String はカテゴリ名を返す。
func (c Category) String() string {
	switch c {
	case Clear:
		return "clear"
	case PartlyCloudy:
		return "partly_cloudy"
	case Rainy:
		return "rainy"
	case Windy:
		return "windy"
	default:
		return "unclassified"
	}
}

// カテゴリごとのアニメーション画像URL。
const (
	ClearImageURL        = "https://i.gifer.com/7GdU.gif"
	PartlyCloudyImageURL = "https://i.gifer.com/68P.gif"
	RainyImageURL        = "https://i.gifer.com/D1D8.gif"
	WindyImageURL        = "https://i.gifer.com/4OCT.gif"
)

// codeSet は状態コードの集合。
type codeSet map[int]struct{}

func newCodeSet(codes ...int) codeSet {
	s := make(codeSet, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}
	return s
}

func (s codeSet) contains(code int) bool {
	_, ok := s[code]
	return ok
}

// rule は判定順に並べたカテゴリと状態コードの対応。
type rule struct {
	category Category
	imageURL string
	codes    codeSet
}

// rules は先頭から順に評価し、最初に一致したものを採用する。
// 1009と1030はPartlyCloudyとWindyの両方に含まれ、PartlyCloudyが優先される。
var rules = []rule{
	{Clear, ClearImageURL, newCodeSet(1000)},
	{PartlyCloudy, PartlyCloudyImageURL, newCodeSet(1003, 1006, 1009, 1030)},
	{Rainy, RainyImageURL, newCodeSet(
		1063, 1180, 1183, 1186, 1189, 1192, 1195, 1198, 1201, 1240, 1243, 1246, 1273, 1276,
	)},
	{Windy, WindyImageURL, newCodeSet(
		1009, 1030, 1066, 1069, 1072, 1087, 1135, 1147, 1150, 1153, 1168, 1171, 1204, 1207,
		1210, 1213, 1216, 1219, 1222, 1225, 1237, 1255, 1258, 1261, 1264, 1279, 1282,
	)},
}

// Classify は状態コードをカテゴリと表示画像URLに分類する。
// どのカテゴリにも該当しない場合はUnclassifiedとfallbackIconURLを返す。
// 状態を持たない純粋関数。
func Classify(code int, fallbackIconURL string) (Category, string) {
	for _, r := range rules {
		if r.codes.contains(code) {
			return r.category, r.imageURL
		}
	}
	return Unclassified, fallbackIconURL
}
