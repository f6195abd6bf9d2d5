package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"goods-registration/internal/domain"
	"goods-registration/internal/domain/model"
	"goods-registration/internal/domain/ports/adapter"
	"goods-registration/internal/domain/ports/repository"
	"goods-registration/internal/infra/logging"
	"goods-registration/internal/infra/worker"
)

var _ RegistrationUseCase = (*registrationUC)(nil)

// Route is the derived navigation target for a registration state. It is
// computed, never stored.
type Route string

const (
	RouteBarcode Route = "barcode"
	RoutePhoto   Route = "photo"
	RouteReview  Route = "review"
	RouteCommit  Route = "commit"
)

// RegistrationUseCase drives one registration attempt per session: stage
// events, re-entrant background enrichment, the derived navigation route
// and the commit gate. All mutation persists through the state repository
// before returning, so a crashed process resumes from the last event.
type RegistrationUseCase interface {
	Start(ctx context.Context, sessionID string, flow model.Flow) (*model.RegistrationState, error)
	Current(ctx context.Context, sessionID string) (*model.RegistrationState, error)

	CaptureBarcode(ctx context.Context, sessionID, value, barcodeType string, source model.BarcodeSource, filename string) (*model.RegistrationState, error)
	BeginManualEntry(ctx context.Context, sessionID string) (*model.RegistrationState, error)
	EnterBarcodeManually(ctx context.Context, sessionID, value string) (*model.RegistrationState, error)
	SkipBarcode(ctx context.Context, sessionID string) (*model.RegistrationState, error)
	RetryBarcode(ctx context.Context, sessionID string) (*model.RegistrationState, error)

	CapturePhoto(ctx context.Context, sessionID string, payload model.ImagePayload) (*model.RegistrationState, error)
	SkipPhoto(ctx context.Context, sessionID string) (*model.RegistrationState, error)

	ProcessEnrichment(ctx context.Context, sessionID string) (*model.RegistrationState, error)
	NextRoute(state *model.RegistrationState) Route

	Commit(ctx context.Context, sessionID string, fields adapter.ProductFields) (model.CommitResult, error)
	Abandon(ctx context.Context, sessionID string) error
}

type registrationUC struct {
	states repository.RegistrationStateRepository
	lookup LookupUseCase
	vision VisionUseCase
	tags   TagUseCase
	commit CommitUseCase
	stage  adapter.PhotoStage
	pool   *worker.Pool
	log    *zerolog.Logger

	// Enrichment runs both from the worker pool and from HTTP polls; the
	// per-session lock keeps those from racing on one session's document.
	mu     sync.Mutex
	enrich map[string]*sync.Mutex
}

func NewRegistrationUseCase(
	states repository.RegistrationStateRepository,
	lookup LookupUseCase,
	vision VisionUseCase,
	tags TagUseCase,
	commit CommitUseCase,
	stage adapter.PhotoStage,
	pool *worker.Pool,
	log *zerolog.Logger,
) *registrationUC {
	return &registrationUC{
		states: states,
		lookup: lookup,
		vision: vision,
		tags:   tags,
		commit: commit,
		stage:  stage,
		pool:   pool,
		log:    log,
		enrich: make(map[string]*sync.Mutex),
	}
}

func (r *registrationUC) Start(ctx context.Context, sessionID string, flow model.Flow) (*model.RegistrationState, error) {
	state := model.NewRegistrationState(flow)
	state.AttemptID = ulid.Make().String()
	if err := r.states.Save(ctx, sessionID, state); err != nil {
		return nil, fmt.Errorf("start registration: %w", err)
	}
	logger := logging.With(logging.WithAttemptID(logging.WithSessionID(ctx, sessionID), state.AttemptID), r.log)
	logger.Info().Str("flow", string(flow)).Msg("registration started")
	return state, nil
}

func (r *registrationUC) Current(ctx context.Context, sessionID string) (*model.RegistrationState, error) {
	return r.states.Load(ctx, sessionID)
}

func (r *registrationUC) CaptureBarcode(ctx context.Context, sessionID, value, barcodeType string, source model.BarcodeSource, filename string) (*model.RegistrationState, error) {
	return r.mutate(ctx, sessionID, func(state *model.RegistrationState) {
		if strings.TrimSpace(value) == "" {
			state.SetBarcodeError("バーコードを読み取れませんでした。")
			return
		}
		state.SetBarcodeCaptured(value, barcodeType, source, filename)
		r.runLookup(ctx, sessionID, state)
		r.refreshTags(ctx, state)
	})
}

func (r *registrationUC) BeginManualEntry(ctx context.Context, sessionID string) (*model.RegistrationState, error) {
	return r.mutate(ctx, sessionID, func(state *model.RegistrationState) {
		state.BeginManualBarcode()
	})
}

func (r *registrationUC) EnterBarcodeManually(ctx context.Context, sessionID, value string) (*model.RegistrationState, error) {
	return r.mutate(ctx, sessionID, func(state *model.RegistrationState) {
		if strings.TrimSpace(value) == "" {
			state.SetBarcodeError("バーコードが入力されていません。")
			return
		}
		state.SetBarcodeManual(value)
		r.runLookup(ctx, sessionID, state)
		r.refreshTags(ctx, state)
	})
}

func (r *registrationUC) SkipBarcode(ctx context.Context, sessionID string) (*model.RegistrationState, error) {
	return r.mutate(ctx, sessionID, func(state *model.RegistrationState) {
		state.SkipBarcode()
		r.refreshTags(ctx, state)
	})
}

func (r *registrationUC) RetryBarcode(ctx context.Context, sessionID string) (*model.RegistrationState, error) {
	return r.mutate(ctx, sessionID, func(state *model.RegistrationState) {
		state.ResetBarcode()
		r.refreshTags(ctx, state)
	})
}

func (r *registrationUC) CapturePhoto(ctx context.Context, sessionID string, payload model.ImagePayload) (*model.RegistrationState, error) {
	defer logging.TraceDuration(r.log, "RegistrationUC.CapturePhoto")()
	state, err := r.mutate(ctx, sessionID, func(state *model.RegistrationState) {
		// A recapture abandons the previously staged original.
		if prev := state.FrontPhoto.OriginalTmpPath; prev != "" && prev != payload.TempPath {
			if err := r.stage.Release(prev); err != nil {
				r.log.Warn().Err(err).Str("path", prev).Msg("stale staged photo not released")
			}
		}
		state.SetPhotoCaptured(payload)
	})
	if err != nil {
		return nil, err
	}
	r.scheduleEnrichment(sessionID)
	return state, nil
}

func (r *registrationUC) SkipPhoto(ctx context.Context, sessionID string) (*model.RegistrationState, error) {
	return r.mutate(ctx, sessionID, func(state *model.RegistrationState) {
		if prev := state.FrontPhoto.OriginalTmpPath; prev != "" {
			if err := r.stage.Release(prev); err != nil {
				r.log.Warn().Err(err).Str("path", prev).Msg("staged photo not released on skip")
			}
		}
		state.SkipPhoto()
		r.refreshTags(ctx, state)
	})
}

// ProcessEnrichment is the re-entrant poll step: whenever tags are loading
// and the description is still pending it runs the vision engine, then tag
// synthesis, and writes the results back. A result arriving after the user
// skipped or retried the stage is discarded by re-checking the gate before
// write-back.
func (r *registrationUC) ProcessEnrichment(ctx context.Context, sessionID string) (*model.RegistrationState, error) {
	defer logging.TraceDuration(r.log, "RegistrationUC.ProcessEnrichment")()
	lock := r.enrichLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	state, err := r.states.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state.Tags.Status != model.TagsLoading || state.FrontPhoto.DescriptionStatus != model.DescriptionPending {
		return state, nil
	}
	if !state.AdvanceDescription(model.DescriptionProcessing) {
		return state, nil
	}
	if err := r.states.Save(ctx, sessionID, state); err != nil {
		return nil, fmt.Errorf("persist enrichment start: %w", err)
	}

	result := r.vision.Describe(ctx, r.photoPayload(state))

	// The describe call is a suspension point; reload and re-check the
	// gate so a skip or recapture issued meanwhile wins.
	state, err = r.states.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state.FrontPhoto.DescriptionStatus != model.DescriptionProcessing {
		r.log.Debug().Str("session_id", sessionID).Msg("stale description result discarded")
		return state, nil
	}

	if result.Status == model.DescribeSuccess {
		state.AdvanceDescription(model.DescriptionDone)
		state.FrontPhoto.Description = result.Text
		state.FrontPhoto.ModelUsed = result.ModelUsed
		state.FrontPhoto.StructuredData = result.StructuredData
	} else {
		state.AdvanceDescription(model.DescriptionError)
		state.FrontPhoto.Description = ""
		r.log.Warn().Str("session_id", sessionID).Str("status", string(result.Status)).Str("detail", result.Message).Msg("description failed")
	}

	r.refreshTags(ctx, state)
	if err := r.states.Save(ctx, sessionID, state); err != nil {
		return nil, fmt.Errorf("persist enrichment result: %w", err)
	}
	return state, nil
}

// NextRoute derives the navigation target. The quick flow goes straight to
// commit once the gate opens; the full flow walks barcode, photo, review.
func (r *registrationUC) NextRoute(state *model.RegistrationState) Route {
	if state.Meta.Flow == model.FlowQuick {
		if state.CanCommit() {
			return RouteCommit
		}
		return RouteBarcode
	}
	switch {
	case !state.Barcode.Status.Resolved():
		return RouteBarcode
	case !state.FrontPhoto.Status.Resolved():
		return RoutePhoto
	default:
		return RouteReview
	}
}

func (r *registrationUC) Commit(ctx context.Context, sessionID string, fields adapter.ProductFields) (model.CommitResult, error) {
	state, err := r.states.Load(ctx, sessionID)
	if err != nil {
		return model.CommitResult{}, err
	}
	if !state.CanCommit() {
		res := model.CommitResult{
			Status:  model.SaveBusinessError,
			Message: commitGateMessage(state.Meta.Flow),
		}
		state.RecordSaveResult(res.Status, res.Message)
		if err := r.states.Save(ctx, sessionID, state); err != nil {
			return model.CommitResult{}, fmt.Errorf("persist gate violation: %w", err)
		}
		return res, nil
	}

	res := r.commit.Commit(ctx, state, fields)
	state.RecordSaveResult(res.Status, res.Message)
	// The staged original is released after commit regardless of outcome;
	// drop the dangling reference so a retried commit falls back to the
	// display payload instead of a missing file.
	state.FrontPhoto.OriginalTmpPath = ""
	if err := r.states.Save(ctx, sessionID, state); err != nil {
		return model.CommitResult{}, fmt.Errorf("persist commit result: %w", err)
	}
	return res, nil
}

func (r *registrationUC) Abandon(ctx context.Context, sessionID string) error {
	state, err := r.states.Load(ctx, sessionID)
	if err != nil && !isNotFound(err) {
		return err
	}
	if state != nil && state.FrontPhoto.OriginalTmpPath != "" {
		if err := r.stage.Release(state.FrontPhoto.OriginalTmpPath); err != nil {
			r.log.Warn().Err(err).Msg("staged photo not released on abandon")
		}
	}
	r.mu.Lock()
	delete(r.enrich, sessionID)
	r.mu.Unlock()
	return r.states.Clear(ctx, sessionID)
}

// enrichLock returns the per-session enrichment lock, creating it on first
// use. Abandon drops the entry with the session.
func (r *registrationUC) enrichLock(sessionID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.enrich[sessionID]
	if !ok {
		l = &sync.Mutex{}
		r.enrich[sessionID] = l
	}
	return l
}

// mutate loads, applies, persists. Single logical thread of control per
// session: callers of the same session never overlap.
func (r *registrationUC) mutate(ctx context.Context, sessionID string, apply func(*model.RegistrationState)) (*model.RegistrationState, error) {
	state, err := r.states.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	apply(state)
	if err := r.states.Save(ctx, sessionID, state); err != nil {
		return nil, fmt.Errorf("persist registration state: %w", err)
	}
	return state, nil
}

func (r *registrationUC) runLookup(ctx context.Context, sessionID string, state *model.RegistrationState) {
	res := r.lookup.Lookup(ctx, state.Barcode.Value, LookupByBarcode)
	state.Lookup = model.LookupState{
		Status:  res.Status,
		Items:   res.Items,
		Message: res.Message,
		Source:  res.Source,
		Keyword: res.Keyword,
	}
	logger := logging.With(logging.WithSessionID(ctx, sessionID), r.log)
	logger.Info().Str("status", string(res.Status)).Int("items", len(res.Items)).Msg("barcode lookup")
}

// refreshTags re-synthesizes tags from whatever sources are currently
// available. While a description is still pending or processing the tags
// stay loading; the enrichment poll finishes the job.
func (r *registrationUC) refreshTags(ctx context.Context, state *model.RegistrationState) {
	switch state.FrontPhoto.DescriptionStatus {
	case model.DescriptionPending, model.DescriptionProcessing:
		state.Tags.Status = model.TagsLoading
		state.Tags.Message = "タグを生成中です..."
		return
	}

	description := ""
	if state.FrontPhoto.DescriptionStatus == model.DescriptionDone {
		description = state.FrontPhoto.Description
	}
	res := r.tags.Synthesize(ctx, state.Lookup.Items, description, r.photoPayload(state))
	state.Tags = model.TagState{Status: res.Status, Tags: res.Tags, Message: res.Message}
}

func (r *registrationUC) photoPayload(state *model.RegistrationState) model.ImagePayload {
	if state.FrontPhoto.Status != model.PhotoCaptured {
		return model.ImagePayload{}
	}
	return model.ImagePayload{
		DisplayContent: state.FrontPhoto.Content,
		RawBase64:      state.FrontPhoto.VisionRaw,
		ContentType:    state.FrontPhoto.ContentType,
		Filename:       state.FrontPhoto.Filename,
		PublicURL:      publicURLFromSource(state.FrontPhoto.VisionSource),
		TempPath:       state.FrontPhoto.OriginalTmpPath,
	}
}

func publicURLFromSource(source string) string {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return source
	}
	return ""
}

func (r *registrationUC) scheduleEnrichment(sessionID string) {
	if r.pool == nil {
		return
	}
	err := r.pool.Submit(func(ctx context.Context) error {
		_, err := r.ProcessEnrichment(ctx, sessionID)
		return err
	})
	if err != nil {
		// Queue saturated; the next state poll re-submits.
		r.log.Debug().Err(err).Str("session_id", sessionID).Msg("enrichment poll not queued")
	}
}

func commitGateMessage(flow model.Flow) string {
	if flow == model.FlowQuick {
		return "バーコードまたは正面写真のどちらかが必要です。"
	}
	return "バーコードと正面写真の両方のステップを完了してください（スキップ可）。"
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
