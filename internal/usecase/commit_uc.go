package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"goods-registration/internal/domain"
	"goods-registration/internal/domain/model"
	"goods-registration/internal/domain/ports/adapter"
	"goods-registration/internal/infra/metrics"
)

var _ CommitUseCase = (*commitUC)(nil)

// CommitUseCase persists a gated registration: asset bytes, photo record,
// product record, then the photo URL update. Business-rule failures
// short-circuit with zero writes; the staged temp file is released on every
// exit path.
type CommitUseCase interface {
	Commit(ctx context.Context, state *model.RegistrationState, fields adapter.ProductFields) model.CommitResult
}

type commitUC struct {
	records adapter.RecordStore
	assets  adapter.AssetStore
	stage   adapter.PhotoStage
	log     *zerolog.Logger
	now     func() time.Time
}

func NewCommitUseCase(records adapter.RecordStore, assets adapter.AssetStore, stage adapter.PhotoStage, log *zerolog.Logger) *commitUC {
	return &commitUC{records: records, assets: assets, stage: stage, log: log, now: time.Now}
}

func (c *commitUC) Commit(ctx context.Context, state *model.RegistrationState, fields adapter.ProductFields) model.CommitResult {
	defer c.releaseStaged(state)

	fillFromState(&fields, state)

	var res model.CommitResult
	if state.Meta.Flow == model.FlowQuick {
		res = c.commitQuick(ctx, state, fields)
	} else {
		res = c.commitFull(ctx, state, fields)
	}
	metrics.ObserveCommit(string(state.Meta.Flow), string(res.Status))
	return res
}

func (c *commitUC) commitFull(ctx context.Context, state *model.RegistrationState, fields adapter.ProductFields) model.CommitResult {
	if strings.TrimSpace(fields.ProductName) == "" {
		return model.CommitResult{Status: model.SaveBusinessError, Message: "商品名を入力してください。"}
	}

	photoID, assetURL, photoNote := c.persistPhoto(ctx, state, fields.MemberID)

	productID, err := c.records.InsertProduct(ctx, fields, photoID)
	if err != nil {
		return c.productInsertFailure(err, assetURL)
	}

	message := fmt.Sprintf("「%s」を登録しました。", fields.ProductName)
	if photoNote != "" {
		message += photoNote
	}
	message += c.updatePhotoURLs(ctx, photoID, assetURL)

	return model.CommitResult{
		Status:      model.SaveSuccess,
		Message:     message,
		PhotoID:     photoID,
		ProductID:   &productID,
		ProductName: fields.ProductName,
	}
}

func (c *commitUC) commitQuick(ctx context.Context, state *model.RegistrationState, fields adapter.ProductFields) model.CommitResult {
	hasPhoto := state.FrontPhoto.Status == model.PhotoCaptured && state.HasPhotoPayload()
	if !hasPhoto && state.Barcode.Value == "" {
		return model.CommitResult{Status: model.SaveBusinessError, Message: "バーコードまたは正面写真のどちらかが必要です。"}
	}

	if strings.TrimSpace(fields.ProductName) == "" {
		fields.ProductName = "未設定_" + c.now().Format("20060102_150405")
	}

	var photoID *int64
	var assetURL string
	if hasPhoto {
		// The quick flow has nothing but the photo to show for itself, so
		// a photo failure fails the whole save.
		data, contentType, err := c.photoBytes(state)
		if err == nil && len(data) == 0 {
			err = errors.New("empty photo payload")
		}
		if err != nil {
			return model.CommitResult{Status: model.SaveSystemError, Message: fmt.Sprintf("写真データの読み込みに失敗しました: %v", err)}
		}
		assetURL, err = c.assets.Upload(ctx, data, state.FrontPhoto.Filename, contentType)
		if err != nil {
			return model.CommitResult{Status: model.SaveSystemError, Message: fmt.Sprintf("写真のアップロードに失敗しました: %v", err)}
		}
		id, err := c.records.InsertPhoto(ctx, adapter.PhotoMeta{MemberID: fields.MemberID, FrontFlag: 1})
		if err != nil {
			return model.CommitResult{Status: model.SaveSystemError, Message: fmt.Sprintf("写真レコードの作成に失敗しました: %v%s", err, orphanNote(assetURL))}
		}
		photoID = &id
	}

	productID, err := c.records.InsertProduct(ctx, fields, photoID)
	if err != nil {
		return c.productInsertFailure(err, assetURL)
	}

	message := fmt.Sprintf("「%s」をクイック登録しました。", fields.ProductName)
	message += c.updatePhotoURLs(ctx, photoID, assetURL)

	return model.CommitResult{
		Status:      model.SaveSuccess,
		Message:     message,
		PhotoID:     photoID,
		ProductID:   &productID,
		ProductName: fields.ProductName,
	}
}

// persistPhoto uploads the asset and creates the photo record for the full
// flow. Any failure degrades to a photo-less registration; the reason is
// returned as a message note rather than an error.
func (c *commitUC) persistPhoto(ctx context.Context, state *model.RegistrationState, memberID string) (photoID *int64, assetURL, note string) {
	if state.FrontPhoto.Status != model.PhotoCaptured || !state.HasPhotoPayload() {
		return nil, "", ""
	}

	data, contentType, err := c.photoBytes(state)
	if err != nil || len(data) == 0 {
		c.log.Warn().Err(err).Msg("photo payload unreadable, committing without photo")
		return nil, "", "（写真の読み込みに失敗したため、写真なしで登録しました。）"
	}
	assetURL, err = c.assets.Upload(ctx, data, state.FrontPhoto.Filename, contentType)
	if err != nil {
		c.log.Warn().Err(err).Msg("photo upload failed, committing without photo")
		return nil, "", "（写真のアップロードに失敗したため、写真なしで登録しました。）"
	}
	id, err := c.records.InsertPhoto(ctx, adapter.PhotoMeta{MemberID: memberID, FrontFlag: 1})
	if err != nil {
		c.log.Warn().Err(err).Str("asset_url", assetURL).Msg("photo record insert failed, asset orphaned")
		return nil, assetURL, "（写真レコードの作成に失敗したため、写真なしで登録しました。）" + orphanNote(assetURL)
	}
	return &id, assetURL, ""
}

func (c *commitUC) productInsertFailure(err error, assetURL string) model.CommitResult {
	if errors.Is(err, domain.ErrBusinessRule) {
		return model.CommitResult{Status: model.SaveBusinessError, Message: fmt.Sprintf("登録内容に問題があります: %v", err)}
	}
	return model.CommitResult{
		Status:  model.SaveSystemError,
		Message: fmt.Sprintf("登録処理でエラーが発生しました: %v%s", err, orphanNote(assetURL)),
	}
}

// updatePhotoURLs runs last; a failure here never un-does the commit, it is
// only reported.
func (c *commitUC) updatePhotoURLs(ctx context.Context, photoID *int64, assetURL string) string {
	if photoID == nil || assetURL == "" {
		return ""
	}
	if err := c.records.UpdatePhotoURLs(ctx, *photoID, assetURL, assetURL); err != nil {
		c.log.Warn().Err(err).Int64("photo_id", *photoID).Msg("photo URL update failed")
		return "（写真URLの更新に失敗しました。）"
	}
	return ""
}

// photoBytes recovers the original photo bytes, preferring the staged file
// over the display data URL. A staged file that is already gone (released by
// an earlier failed commit) falls back to the display payload so the session
// stays committable.
func (c *commitUC) photoBytes(state *model.RegistrationState) ([]byte, string, error) {
	contentType := state.FrontPhoto.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	if path := state.FrontPhoto.OriginalTmpPath; path != "" {
		data, err := c.stage.Read(path)
		if err == nil {
			return data, contentType, nil
		}
		c.log.Warn().Err(err).Str("path", path).Msg("staged photo unreadable, using display payload")
	}
	return decodeDataURL(state.FrontPhoto.Content, contentType)
}

func decodeDataURL(content, fallbackType string) ([]byte, string, error) {
	if content == "" {
		return nil, "", errors.New("no photo content")
	}
	rest, ok := strings.CutPrefix(content, "data:")
	if !ok {
		return nil, "", errors.New("photo content is not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", errors.New("malformed data URL")
	}
	contentType := fallbackType
	if ct, _, _ := strings.Cut(meta, ";"); ct != "" {
		contentType = ct
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode photo payload: %w", err)
	}
	return data, contentType, nil
}

func (c *commitUC) releaseStaged(state *model.RegistrationState) {
	if err := c.stage.Release(state.FrontPhoto.OriginalTmpPath); err != nil {
		c.log.Warn().Err(err).Str("path", state.FrontPhoto.OriginalTmpPath).Msg("staged photo not released after commit")
	}
}

// fillFromState copies barcode data captured during the flow into the
// persisted fields when the caller left them blank.
func fillFromState(fields *adapter.ProductFields, state *model.RegistrationState) {
	if fields.Barcode == "" {
		fields.Barcode = state.Barcode.Value
	}
	if fields.BarcodeType == "" && state.Barcode.Value != "" {
		fields.BarcodeType = state.Barcode.Type
	}
}

func orphanNote(assetURL string) string {
	if assetURL == "" {
		return ""
	}
	return fmt.Sprintf("（アップロード済みの写真 %s が孤立しています。）", assetURL)
}
