package usecase

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"goods-registration/internal/domain/model"
)

// minDescriptionRunes is the shortest description worth keeping; anything
// shorter is almost always a refusal or a truncated reply.
const minDescriptionRunes = 12

// boilerplatePhrases mark model refusals and placeholder replies. Matching
// is case-insensitive substring.
var boilerplatePhrases = []string{
	"please provide the image",
	"please provide an image",
	"please upload",
	"i cannot see",
	"i can't see",
	"i'm unable to see",
	"unable to view the image",
	"no image was provided",
	"as an ai",
	"画像が見えません",
	"画像が提供されていません",
	"画像を提供してください",
	"画像をアップロードしてください",
	"画像が表示されません",
	"画像を確認できません",
}

// ValidDescription reports whether model output is usable as a product
// description: long enough, no refusal boilerplate, and actually written
// in Japanese script. Invalid output is not retried; the caller moves on
// to the next cascade variant.
func ValidDescription(text string) bool {
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < minDescriptionRunes {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, phrase := range boilerplatePhrases {
		if strings.Contains(lower, phrase) {
			return false
		}
	}
	return containsJapaneseScript(trimmed)
}

func containsJapaneseScript(s string) bool {
	for _, r := range s {
		if unicode.In(r, unicode.Hiragana, unicode.Katakana, unicode.Han) {
			return true
		}
	}
	return false
}

// Vocabulary tables for structured extraction. Extraction is pattern and
// dictionary driven only; a field with no match stays empty.
var (
	// Bare 金/銀 are deliberately absent: 金属 would match them.
	colorVocabulary = []string{
		"赤", "青", "黒", "白", "ピンク", "金色", "銀色", "緑", "黄色", "紫",
		"オレンジ", "茶色", "水色", "グレー", "ベージュ",
	}

	materialVocabulary = []string{
		"アクリル", "金属", "合金", "布", "紙", "プラスチック", "ラバー",
		"ゴム", "陶器", "ガラス", "レジン", "キャンバス", "ポリエステル", "木製",
	}

	shapeVocabulary = []string{
		"缶バッジ", "アクリルスタンド", "アクリルキーホルダー", "キーホルダー",
		"ぬいぐるみ", "フィギュア", "ステッカー", "ポスター", "タペストリー",
		"ラバーストラップ", "クリアファイル", "マグカップ", "トレーディングカード",
		"カード", "ブロマイド", "チャーム",
	}

	featureVocabulary = []string{
		"限定", "ホログラム", "ラメ", "サイン入り", "サイン", "箔押し",
		"コラボ", "イベント", "ライブ", "特典", "復刻",
	}

	characterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`「([^」]{1,30})」というキャラクター`),
		regexp.MustCompile(`キャラクター(?:名)?(?:は|：|:)\s*「?([^」。、\s]{1,30})`),
		regexp.MustCompile(`「([^」]{1,30})」のイラスト`),
	}

	workPatterns = []*regexp.Regexp{
		regexp.MustCompile(`「([^」]{1,40})」という(?:作品|アニメ|ゲーム|シリーズ)`),
		regexp.MustCompile(`(?:作品|アニメ|ゲーム|シリーズ)「([^」]{1,40})」`),
		regexp.MustCompile(`「([^」]{1,40})」の(?:グッズ|商品|公式)`),
	}
)

// ExtractStructured pulls structured fields out of a free-text description.
// Deterministic over the vocabulary and pattern tables above.
func ExtractStructured(text string) *model.StructuredData {
	out := &model.StructuredData{
		Colors:    firstMatches(text, colorVocabulary, 5),
		Materials: firstMatches(text, materialVocabulary, 3),
		Features:  firstMatches(text, featureVocabulary, 5),
	}
	for _, shape := range shapeVocabulary {
		if strings.Contains(text, shape) {
			out.Shape = shape
			break
		}
	}
	out.CharacterName = firstGroup(text, characterPatterns)
	out.WorkName = firstGroup(text, workPatterns)

	if out.CharacterName == "" && out.WorkName == "" && out.Shape == "" &&
		len(out.Colors) == 0 && len(out.Materials) == 0 && len(out.Features) == 0 {
		return nil
	}
	return out
}

func firstMatches(text string, vocabulary []string, limit int) []string {
	var found []string
	for _, word := range vocabulary {
		if !strings.Contains(text, word) || subsumed(found, word) {
			continue
		}
		found = append(found, word)
		if len(found) == limit {
			break
		}
	}
	return found
}

// subsumed reports whether word is already covered by a longer match, so
// サイン入り suppresses the bare サイン entry.
func subsumed(found []string, word string) bool {
	for _, f := range found {
		if strings.Contains(f, word) {
			return true
		}
	}
	return false
}

func firstGroup(text string, patterns []*regexp.Regexp) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}
