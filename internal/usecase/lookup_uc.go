package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"goods-registration/internal/domain/model"
	"goods-registration/internal/domain/ports/adapter"
	"goods-registration/internal/infra/metrics"
)

// Compile-time check
var _ LookupUseCase = (*lookupUC)(nil)

// LookupSource labels what kind of keyword drives a lookup.
type LookupSource string

const (
	LookupByBarcode     LookupSource = "barcode"
	LookupByDescription LookupSource = "description"
)

// LookupUseCase maps a barcode or keyword to normalized product candidates.
// Every failure class is encoded in the result status; Lookup never returns
// an error to the caller.
type LookupUseCase interface {
	Lookup(ctx context.Context, keyword string, source LookupSource) model.LookupResult
}

type lookupUC struct {
	search adapter.ProductSearchAdapter
	log    *zerolog.Logger
}

func NewLookupUseCase(search adapter.ProductSearchAdapter, log *zerolog.Logger) *lookupUC {
	return &lookupUC{search: search, log: log}
}

func (l *lookupUC) Lookup(ctx context.Context, keyword string, source LookupSource) model.LookupResult {
	keyword = strings.TrimSpace(keyword)
	res := l.lookup(ctx, keyword, source)
	metrics.ObserveLookup(string(source), string(res.Status))
	return res
}

func (l *lookupUC) lookup(ctx context.Context, keyword string, source LookupSource) model.LookupResult {
	base := model.LookupResult{Items: []model.ProductCandidate{}, Source: string(source), Keyword: keyword}

	if keyword == "" {
		base.Status = model.LookupInvalid
		if source == LookupByBarcode {
			base.Message = "バーコードが空です。"
		} else {
			base.Message = "検索キーワードが空です。"
		}
		return base
	}
	if !l.search.Configured() {
		base.Status = model.LookupMissingCredentials
		base.Message = "商品検索APIの認証情報が設定されていません。"
		return base
	}

	hint := ""
	if source == LookupByBarcode {
		hint = keyword
	}
	raw, err := l.search.Search(ctx, keyword, hint)
	if err != nil {
		l.log.Warn().Err(err).Str("source", string(source)).Msg("product search failed")
		base.Status = model.LookupError
		base.Message = fmt.Sprintf("商品検索API通信エラー: %v", err)
		return base
	}
	if len(raw) == 0 {
		base.Status = model.LookupNotFound
		base.Message = "該当する商品が見つかりませんでした。"
		return base
	}

	items := make([]model.ProductCandidate, 0, len(raw))
	for _, r := range raw {
		items = append(items, normalizeCandidate(r))
	}
	base.Status = model.LookupSuccess
	base.Items = items
	base.Message = "商品候補を取得しました。"
	return base
}

// Marketing boilerplate stripped from raw item names. The bracket patterns
// cover the 【...】 promo tags shops prepend; the plain patterns cover
// inline shipping and stock notices.
var (
	promoBracketRe = regexp.MustCompile(`【[^】]*】`)
	squareTagRe    = regexp.MustCompile(`\[([^\]]+)\]`)
	promoPhraseRe  = regexp.MustCompile(`送料無料|送料込み?|ポイント\d+倍|あす楽対応?|即日発送|即納|在庫あり|正規品|新品未開封`)
	marketplaceRe  = regexp.MustCompile(`(?i)楽天市場店?|rakuten|yahoo!?ショッピング|amazon`)
	spaceRe        = regexp.MustCompile(`[\s　]+`)
)

// promoWordRe classifies a bracketed segment as promo noise rather than a
// brand/series hint.
var promoWordRe = regexp.MustCompile(`送料|ポイント|セール|割引|クーポン|予約|限定|公式|あす楽|即納`)

// normalizeCandidate cleans the raw name and splits out low-confidence
// brand/series hints from bracket patterns. Hints are for auto-fill only.
func normalizeCandidate(r adapter.RawSearchItem) model.ProductCandidate {
	raw := r.Name
	brand, series := "", ""

	// Brand hint: the first 【...】 segment that is not promo vocabulary.
	for _, m := range promoBracketRe.FindAllString(raw, -1) {
		inner := strings.Trim(m, "【】")
		if inner != "" && !promoWordRe.MatchString(inner) {
			brand = strings.TrimSpace(inner)
			break
		}
	}
	// Series hint: the first [...] segment.
	if m := squareTagRe.FindStringSubmatch(raw); m != nil {
		series = strings.TrimSpace(m[1])
	}

	name := promoBracketRe.ReplaceAllString(raw, " ")
	name = squareTagRe.ReplaceAllString(name, " ")
	name = promoPhraseRe.ReplaceAllString(name, " ")
	name = marketplaceRe.ReplaceAllString(name, " ")
	name = strings.TrimSpace(spaceRe.ReplaceAllString(name, " "))
	if name == "" {
		name = strings.TrimSpace(raw)
	}

	url := r.AffiliateURL
	if url == "" {
		url = r.URL
	}
	return model.ProductCandidate{
		Name:      name,
		RawName:   raw,
		Price:     r.Price,
		ShopName:  r.ShopName,
		URL:       url,
		ImageURLs: append([]string(nil), r.ImageURLs...),
		JAN:       r.JAN,
		ItemCode:  r.ItemCode,
		Brand:     brand,
		Series:    series,
	}
}
