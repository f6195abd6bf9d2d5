package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"goods-registration/internal/domain"
	"goods-registration/internal/domain/model"
	"goods-registration/internal/domain/ports/adapter"
	"goods-registration/internal/infra/metrics"
)

// Compile-time check
var _ VisionUseCase = (*visionUC)(nil)

// VisionUseCase derives a textual description plus best-effort structured
// fields from a photo. Provider failures never surface as errors; they are
// encoded in the result status.
type VisionUseCase interface {
	Describe(ctx context.Context, image model.ImagePayload) model.DescriptionResult
}

const visionSystemPrompt = "あなたはグッズ・コレクション管理のために商品写真を説明するアシスタントです。"

const visionInstruction = "画像の商品について、ブランド、キャラクター名、色、素材、" +
	"印字されている文字、識別に役立つ特徴を中心に日本語で説明してください。"

// describeVariant is one payload-encoding/ordering strategy. Variants are
// tried in table order until one yields output that passes the validity
// filter; the table makes the fallback order a testable value instead of
// control flow.
type describeVariant struct {
	name       string
	applicable func(model.ImagePayload) bool
	build      func(model.ImagePayload) []adapter.Message
}

func always(model.ImagePayload) bool { return true }

var describeVariants = []describeVariant{
	{
		name:       "instruction_then_image",
		applicable: always,
		build: func(p model.ImagePayload) []adapter.Message {
			return visionMessages(
				adapter.ContentPart{Type: "text", Text: visionInstruction},
				adapter.ContentPart{Type: "image_url", ImageURL: &adapter.ImageURL{URL: p.UploadSource()}},
			)
		},
	},
	{
		name:       "image_then_instruction",
		applicable: always,
		build: func(p model.ImagePayload) []adapter.Message {
			return visionMessages(
				adapter.ContentPart{Type: "image_url", ImageURL: &adapter.ImageURL{URL: p.UploadSource()}},
				adapter.ContentPart{Type: "text", Text: visionInstruction},
			)
		},
	},
	{
		name:       "raw_base64",
		applicable: func(p model.ImagePayload) bool { return p.RawBase64 != "" },
		build: func(p model.ImagePayload) []adapter.Message {
			return visionMessages(
				adapter.ContentPart{Type: "input_text", Text: visionInstruction},
				adapter.ContentPart{Type: "input_image", Image: p.RawBase64},
			)
		},
	},
	{
		name:       "image_only",
		applicable: always,
		build: func(p model.ImagePayload) []adapter.Message {
			return visionMessages(
				adapter.ContentPart{Type: "image_url", ImageURL: &adapter.ImageURL{URL: p.UploadSource()}},
			)
		},
	},
	{
		name:       "url_only",
		applicable: func(p model.ImagePayload) bool { return p.PublicURL != "" },
		build: func(p model.ImagePayload) []adapter.Message {
			return []adapter.Message{
				adapter.TextMessage("system", visionSystemPrompt),
				adapter.TextMessage("user", visionInstruction+"\n画像URL: "+p.PublicURL),
			}
		},
	},
}

func visionMessages(parts ...adapter.ContentPart) []adapter.Message {
	return []adapter.Message{
		adapter.TextMessage("system", visionSystemPrompt),
		{Role: "user", Parts: parts},
	}
}

// alternateVariantCap bounds alternate-provider attempts to the two
// cheapest variants per model.
const alternateVariantCap = 2

type visionUC struct {
	ai              adapter.AIServiceAdapter
	primaryModel    string
	fallbackModel   string
	alternateModels []string
	temperature     float64
	log             *zerolog.Logger
}

func NewVisionUseCase(ai adapter.AIServiceAdapter, primary, fallback string, alternates []string, temperature float64, log *zerolog.Logger) *visionUC {
	return &visionUC{
		ai:              ai,
		primaryModel:    primary,
		fallbackModel:   fallback,
		alternateModels: alternates,
		temperature:     temperature,
		log:             log,
	}
}

func (v *visionUC) Describe(ctx context.Context, image model.ImagePayload) model.DescriptionResult {
	if !v.ai.Configured() {
		return model.DescriptionResult{
			Status:  model.DescribeMissingCredentials,
			Message: "画像解析APIキーが設定されていません。",
		}
	}
	if image.Empty() {
		return model.DescriptionResult{
			Status:  model.DescribeInvalid,
			Message: "画像データが空です。",
		}
	}

	attempts := 0
	sawText := false
	var lastErr error

	for _, stage := range v.cascade() {
		for _, variant := range stage.variants {
			if !variant.applicable(image) {
				continue
			}
			attempts++
			text, err := v.call(ctx, stage.model, variant, image)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					metrics.ObserveCascadeDepth(attempts)
					return model.DescriptionResult{Status: model.DescribeError, Message: fmt.Sprintf("画像説明の生成が中断されました: %v", err)}
				}
				lastErr = err
				continue
			}
			sawText = true
			if !ValidDescription(text) {
				v.log.Debug().Str("model", stage.model).Str("variant", variant.name).Msg("description rejected by validity filter")
				continue
			}
			metrics.ObserveCascadeDepth(attempts)
			return model.DescriptionResult{
				Status:         model.DescribeSuccess,
				Text:           text,
				StructuredData: ExtractStructured(text),
				ModelUsed:      stage.model,
				Message:        "画像から製品説明を生成しました。",
			}
		}
	}

	metrics.ObserveCascadeDepth(attempts)
	if !sawText && lastErr != nil {
		return model.DescriptionResult{
			Status:  model.DescribeError,
			Message: fmt.Sprintf("画像解析API通信エラー: %v", lastErr),
		}
	}
	return model.DescriptionResult{
		Status:  model.DescribeInvalid,
		Message: "有効な画像説明を生成できませんでした。",
	}
}

type cascadeStage struct {
	model    string
	variants []describeVariant
}

// cascade is the full ordered (model, variants) table: every variant on the
// primary model, then on the fallback model, then the first two variants on
// each alternate model.
func (v *visionUC) cascade() []cascadeStage {
	stages := []cascadeStage{{model: v.primaryModel, variants: describeVariants}}
	if v.fallbackModel != "" && v.fallbackModel != v.primaryModel {
		stages = append(stages, cascadeStage{model: v.fallbackModel, variants: describeVariants})
	}
	for _, alt := range v.alternateModels {
		if alt == "" || alt == v.primaryModel || alt == v.fallbackModel {
			continue
		}
		stages = append(stages, cascadeStage{model: alt, variants: describeVariants[:alternateVariantCap]})
	}
	return stages
}

func (v *visionUC) call(ctx context.Context, modelName string, variant describeVariant, image model.ImagePayload) (string, error) {
	start := time.Now()
	text, err := v.ai.Chat(ctx, modelName, variant.build(image), v.temperature)
	outcome := "ok"
	if err != nil {
		outcome = "transport_error"
		if errors.Is(err, domain.ErrCredentialsMissing) {
			outcome = "missing_credentials"
		}
	}
	metrics.ObserveAICall(v.ai.Provider(), modelName, variant.name, outcome, time.Since(start), err == nil)
	return text, err
}
