package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"goods-registration/internal/domain/model"
	"goods-registration/internal/domain/ports/adapter"
	"goods-registration/internal/infra/metrics"
)

var _ TagUseCase = (*tagsUC)(nil)

// TagUseCase builds a deduplicated tag list from up to three independent
// sources: commerce lookup candidates, the vision description, and the
// photo itself. Any single source failing degrades to an empty list; only
// total absence of input yields not_ready.
type TagUseCase interface {
	Synthesize(ctx context.Context, candidates []model.ProductCandidate, description string, image model.ImagePayload) model.TagResult
}

// tagTargetSize is the per-source budget requested from the model.
const tagTargetSize = 5

type tagsUC struct {
	ai          adapter.AIServiceAdapter
	modelName   string
	temperature float64
	log         *zerolog.Logger
}

func NewTagUseCase(ai adapter.AIServiceAdapter, modelName string, temperature float64, log *zerolog.Logger) *tagsUC {
	return &tagsUC{ai: ai, modelName: modelName, temperature: temperature, log: log}
}

func (t *tagsUC) Synthesize(ctx context.Context, candidates []model.ProductCandidate, description string, image model.ImagePayload) model.TagResult {
	hasCandidates := len(candidates) > 0
	hasDescription := strings.TrimSpace(description) != ""
	hasImage := !image.Empty()
	if !hasCandidates && !hasDescription && !hasImage {
		return model.TagResult{
			Status:  model.TagsNotReady,
			Message: "バーコード照合または画像説明の結果が揃うとタグを生成します。",
		}
	}

	var commerceTags, imageTags, descTags []string
	if hasCandidates {
		commerceTags = t.tagsFromCommerce(ctx, candidates)
	}
	if hasImage {
		imageTags = t.tagsFromImage(ctx, image)
	}
	if hasDescription {
		descTags = t.tagsFromDescription(ctx, description)
	}

	// Image tags carry the most signal; backfill from the description up
	// to the per-source budget, then guarantee at least one candidate via
	// the local extractor whenever the description is non-trivial.
	enriched := dedupeTags(append(append([]string{}, imageTags...), descTags...))
	if len(enriched) > tagTargetSize {
		enriched = enriched[:tagTargetSize]
	}
	if len(enriched) < tagTargetSize && hasDescription {
		for _, tag := range SemanticTagsFromDescription(description) {
			enriched = appendUnique(enriched, tag)
			if len(enriched) == tagTargetSize {
				break
			}
		}
	}

	merged := dedupeTags(append(enriched, commerceTags...))
	if len(merged) == 0 {
		return model.TagResult{
			Status:  model.TagsNotReady,
			Message: "タグ候補を抽出できませんでした。",
		}
	}

	metrics.AddTagsFromSource("commerce", len(commerceTags))
	metrics.AddTagsFromSource("image", len(imageTags))
	metrics.AddTagsFromSource("description", len(descTags))

	return model.TagResult{
		Status: model.TagsSuccess,
		Tags:   merged,
		Message: fmt.Sprintf("タグを生成しました（楽天: %d件、画像: %d件、説明文: %d件）。",
			len(commerceTags), len(imageTags), len(descTags)),
	}
}

const tagSystemPrompt = "あなたはコレクショングッズの管理用タグを抽出するアシスタントです。" +
	"タグはJSON配列のみで返してください。"

func (t *tagsUC) tagsFromCommerce(ctx context.Context, candidates []model.ProductCandidate) []string {
	prompt := fmt.Sprintf(
		"以下の商品候補リストから、検索に役立つ日本語タグを最大%d個抽出してください。\n%s",
		tagTargetSize, formatCandidates(candidates))
	return t.textTagCall(ctx, "commerce", prompt)
}

func (t *tagsUC) tagsFromDescription(ctx context.Context, description string) []string {
	prompt := fmt.Sprintf(
		"以下の商品説明文に文字通り含まれている語句のみを使って、タグを最大%d個抽出してください。"+
			"説明文にない語句は出力しないでください。\n---\n%s",
		tagTargetSize, description)
	tags := t.textTagCall(ctx, "description", prompt)
	return literalFilter(tags, description)
}

func (t *tagsUC) tagsFromImage(ctx context.Context, image model.ImagePayload) []string {
	messages := []adapter.Message{
		adapter.TextMessage("system", tagSystemPrompt),
		{Role: "user", Parts: []adapter.ContentPart{
			{Type: "text", Text: fmt.Sprintf("この商品画像から、検索に役立つ日本語タグを最大%d個抽出してください。", tagTargetSize)},
			{Type: "image_url", ImageURL: &adapter.ImageURL{URL: image.UploadSource()}},
		}},
	}
	raw, err := t.ai.Chat(ctx, t.modelName, messages, t.temperature)
	if err != nil {
		t.log.Debug().Err(err).Str("source", "image").Msg("tag call failed, source degrades to empty")
		return nil
	}
	return capTags(filterTags(ParseTags(raw)))
}

func (t *tagsUC) textTagCall(ctx context.Context, source, prompt string) []string {
	messages := []adapter.Message{
		adapter.TextMessage("system", tagSystemPrompt),
		adapter.TextMessage("user", prompt),
	}
	raw, err := t.ai.Chat(ctx, t.modelName, messages, t.temperature)
	if err != nil {
		t.log.Debug().Err(err).Str("source", source).Msg("tag call failed, source degrades to empty")
		return nil
	}
	return capTags(filterTags(ParseTags(raw)))
}

func capTags(tags []string) []string {
	if len(tags) > tagTargetSize {
		return tags[:tagTargetSize]
	}
	return tags
}

func formatCandidates(candidates []model.ProductCandidate) string {
	var b strings.Builder
	for i, c := range candidates {
		price := "-"
		if c.Price != nil {
			price = fmt.Sprintf("%d円", *c.Price)
		}
		fmt.Fprintf(&b, "#%d | Name: %s | Shop: %s | Price: %s | JAN: %s | ItemCode: %s\n",
			i+1, c.Name, c.ShopName, price, c.JAN, c.ItemCode)
	}
	return b.String()
}

var (
	codeFenceRe    = regexp.MustCompile("(?s)```[a-zA-Z]*\n?|```")
	tagSplitRe     = regexp.MustCompile(`[\n,、，・|/]+`)
	pureNumericRe  = regexp.MustCompile(`^[0-9０-９.,．、]+$`)
	enumArtifactRe = regexp.MustCompile(`^[0-9０-９]+[.)．、）]?$`)
	bulletTrimSet  = "-•*・ \t0123456789.)．、）「」\"'"
)

// ParseTags decodes a model reply into raw tag tokens. Strict JSON forms
// are tried first (a bare array, then {"tags":[...]}); anything else is
// split on common delimiters.
func ParseTags(raw string) []string {
	cleaned := strings.TrimSpace(codeFenceRe.ReplaceAllString(raw, ""))
	if cleaned == "" {
		return nil
	}

	var arr []string
	if err := json.Unmarshal([]byte(cleaned), &arr); err == nil {
		return trimAll(arr)
	}
	var wrapped struct {
		Tags []string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(cleaned), &wrapped); err == nil && len(wrapped.Tags) > 0 {
		return trimAll(wrapped.Tags)
	}
	return trimAll(tagSplitRe.Split(cleaned, -1))
}

func trimAll(tokens []string) []string {
	var out []string
	for _, tok := range tokens {
		tok = strings.Trim(strings.TrimSpace(tok), bulletTrimSet)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// noiseTags are generic inventory/marketplace vocabulary and fashion-domain
// false positives that carry no search value for collectible goods.
var noiseTags = map[string]struct{}{
	"商品": {}, "グッズ": {}, "アイテム": {}, "雑貨": {}, "コレクション": {},
	"プレゼント": {}, "ギフト": {}, "おもちゃ": {}, "ホビー": {}, "新品": {},
	"中古": {}, "未使用": {}, "未開封": {}, "セット": {}, "単品": {},
	"公式": {}, "正規品": {}, "人気": {}, "おすすめ": {}, "かわいい": {},
	"タグ": {}, "その他": {},
	"レディース": {}, "メンズ": {}, "ファッション": {}, "アパレル": {},
	"ユニセックス": {}, "フリーサイズ": {},
	"item": {}, "goods": {}, "tag": {}, "tags": {}, "product": {}, "none": {},
}

// maxTagRunes rejects sentence-length phrases the splitter sometimes yields.
const maxTagRunes = 20

func filterTags(tokens []string) []string {
	var out []string
	for _, tok := range tokens {
		if tok == "" || utf8.RuneCountInString(tok) > maxTagRunes {
			continue
		}
		if pureNumericRe.MatchString(tok) || enumArtifactRe.MatchString(tok) {
			continue
		}
		if _, noisy := noiseTags[strings.ToLower(tok)]; noisy {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// literalFilter drops tags not literally present in the source text. This
// is the anti-hallucination gate on the description source.
func literalFilter(tags []string, source string) []string {
	lowerSource := strings.ToLower(source)
	var out []string
	for _, tag := range tags {
		if strings.Contains(lowerSource, strings.ToLower(tag)) {
			out = append(out, tag)
		}
	}
	return out
}

func dedupeTags(tags []string) []string {
	var out []string
	for _, tag := range tags {
		out = appendUnique(out, tag)
	}
	return out
}

func appendUnique(tags []string, tag string) []string {
	for _, existing := range tags {
		if strings.EqualFold(existing, tag) {
			return tags
		}
	}
	return append(tags, tag)
}

var (
	quotedNounRe    = regexp.MustCompile(`「([^」]{1,20})」`)
	motifVocabulary = []string{
		"ハート", "星", "花", "リボン", "月", "王冠", "猫", "犬", "うさぎ",
		"クマ", "ペンギン", "ドラゴン", "桜", "音符",
	}
)

// SemanticTagsFromDescription is the local heuristic extractor: it matches
// item-type, color, material and motif vocabularies plus quoted proper
// nouns directly against the raw text, with no external call. Output is
// deterministic and capped at the per-source budget.
func SemanticTagsFromDescription(description string) []string {
	text := strings.TrimSpace(description)
	if utf8.RuneCountInString(text) < minDescriptionRunes {
		return nil
	}

	var tags []string
	for _, m := range quotedNounRe.FindAllStringSubmatch(text, -1) {
		tags = appendUnique(tags, strings.TrimSpace(m[1]))
	}
	for _, shape := range shapeVocabulary {
		if strings.Contains(text, shape) {
			tags = appendUnique(tags, shape)
			break
		}
	}
	tags = appendVocabulary(tags, text, colorVocabulary)
	tags = appendVocabulary(tags, text, materialVocabulary)
	tags = appendVocabulary(tags, text, motifVocabulary)

	tags = filterTags(tags)
	if len(tags) > tagTargetSize {
		tags = tags[:tagTargetSize]
	}
	return tags
}

func appendVocabulary(tags []string, text string, vocabulary []string) []string {
	for _, word := range vocabulary {
		if strings.Contains(text, word) && !subsumed(tags, word) {
			tags = appendUnique(tags, word)
		}
	}
	return tags
}
