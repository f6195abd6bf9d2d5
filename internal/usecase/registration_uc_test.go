// File: internal/usecase/registration_uc_test.go
package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"goods-registration/internal/domain/model"
	"goods-registration/internal/domain/ports/adapter"
)

func newTestOrchestrator(repo *memStateRepo, lookup *fakeLookupUC, vision *fakeVisionUC, tags *fakeTagsUC, commit *fakeCommitUC, stage *fakeStage) *registrationUC {
	return NewRegistrationUseCase(repo, lookup, vision, tags, commit, stage, nil, newTestLogger())
}

func TestRegistrationBarcodeFlow(t *testing.T) {
	ctx := context.Background()
	repo := newMemStateRepo()
	lookup := &fakeLookupUC{LookupFunc: func(ctx context.Context, keyword string, source LookupSource) model.LookupResult {
		return model.LookupResult{
			Status:  model.LookupSuccess,
			Items:   []model.ProductCandidate{{Name: "テストフィギュア", JAN: keyword}},
			Message: "商品候補を取得しました。",
			Source:  string(source),
			Keyword: keyword,
		}
	}}
	tags := &fakeTagsUC{}
	uc := newTestOrchestrator(repo, lookup, &fakeVisionUC{}, tags, &fakeCommitUC{}, newFakeStage())

	if _, err := uc.Start(ctx, "s1", model.FlowFull); err != nil {
		t.Fatal(err)
	}

	state, err := uc.CaptureBarcode(ctx, "s1", "4901234567890", "EAN13", model.SourceCamera, "scan.png")
	if err != nil {
		t.Fatal(err)
	}
	if state.Barcode.Status != model.BarcodeCaptured {
		t.Errorf("barcode status = %s", state.Barcode.Status)
	}
	if state.Lookup.Status != model.LookupSuccess || len(state.Lookup.Items) != 1 {
		t.Errorf("lookup state = %+v", state.Lookup)
	}
	if state.Tags.Status != model.TagsSuccess {
		t.Errorf("tags should be synthesized after the barcode event, got %s", state.Tags.Status)
	}
	if state.AttemptID == "" {
		t.Error("attempt id missing")
	}

	// Mutations survive a reload.
	reloaded, err := uc.Current(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Barcode.Value != "4901234567890" {
		t.Errorf("persisted value = %q", reloaded.Barcode.Value)
	}

	// Retry discards barcode and lookup.
	state, err = uc.RetryBarcode(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if state.Barcode.Status != model.BarcodeIdle || state.Lookup.Status != model.LookupIdle {
		t.Errorf("retry must reset: barcode=%s lookup=%s", state.Barcode.Status, state.Lookup.Status)
	}

	// Skip clears the value and marks lookup skipped.
	if _, err = uc.CaptureBarcode(ctx, "s1", "4901234567890", "EAN13", model.SourceCamera, ""); err != nil {
		t.Fatal(err)
	}
	state, err = uc.SkipBarcode(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if state.Barcode.Value != "" || state.Barcode.Status != model.BarcodeSkipped {
		t.Errorf("skipped barcode must not carry a value: %+v", state.Barcode)
	}
	if state.Lookup.Status != model.LookupSkipped {
		t.Errorf("lookup status = %s", state.Lookup.Status)
	}
}

func TestRegistrationEnrichment(t *testing.T) {
	ctx := context.Background()
	repo := newMemStateRepo()
	vision := &fakeVisionUC{DescribeFunc: func(ctx context.Context, image model.ImagePayload) model.DescriptionResult {
		return model.DescriptionResult{Status: model.DescribeSuccess, Text: validJapaneseDescription, ModelUsed: "primary"}
	}}
	tags := &fakeTagsUC{}
	stage := newFakeStage()
	uc := newTestOrchestrator(repo, &fakeLookupUC{}, vision, tags, &fakeCommitUC{}, stage)

	if _, err := uc.Start(ctx, "s1", model.FlowFull); err != nil {
		t.Fatal(err)
	}
	path, _ := stage.Stage([]byte("jpeg"))
	state, err := uc.CapturePhoto(ctx, "s1", model.ImagePayload{
		DisplayContent: "data:image/jpeg;base64,aGVsbG8=",
		ContentType:    "image/jpeg",
		TempPath:       path,
	})
	if err != nil {
		t.Fatal(err)
	}
	if state.FrontPhoto.DescriptionStatus != model.DescriptionPending {
		t.Fatalf("description status = %s, want pending", state.FrontPhoto.DescriptionStatus)
	}
	if state.Tags.Status != model.TagsLoading {
		t.Fatalf("tags status = %s, want loading", state.Tags.Status)
	}

	state, err = uc.ProcessEnrichment(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if state.FrontPhoto.DescriptionStatus != model.DescriptionDone {
		t.Errorf("description status = %s, want done", state.FrontPhoto.DescriptionStatus)
	}
	if state.FrontPhoto.Description != validJapaneseDescription {
		t.Errorf("description = %q", state.FrontPhoto.Description)
	}
	if vision.Calls != 1 {
		t.Errorf("describe calls = %d", vision.Calls)
	}
	// Tag synthesis consumed the finished description.
	if n := len(tags.Descriptions); n == 0 || tags.Descriptions[n-1] != validJapaneseDescription {
		t.Errorf("tag synthesis did not receive the description: %v", tags.Descriptions)
	}
	if state.Tags.Status != model.TagsSuccess {
		t.Errorf("tags status = %s", state.Tags.Status)
	}

	// Re-entrant: a second poll is a no-op.
	before := vision.Calls
	if _, err := uc.ProcessEnrichment(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if vision.Calls != before {
		t.Error("enrichment must not re-run once the description gate is done")
	}
}

func TestRegistrationEnrichmentSerializedPerSession(t *testing.T) {
	ctx := context.Background()
	repo := newMemStateRepo()
	vision := &fakeVisionUC{DescribeFunc: func(ctx context.Context, image model.ImagePayload) model.DescriptionResult {
		// Hold the description stage open so a concurrent poll arrives
		// while the first is still in flight.
		time.Sleep(20 * time.Millisecond)
		return model.DescriptionResult{Status: model.DescribeSuccess, Text: validJapaneseDescription, ModelUsed: "primary"}
	}}
	uc := newTestOrchestrator(repo, &fakeLookupUC{}, vision, &fakeTagsUC{}, &fakeCommitUC{}, newFakeStage())

	if _, err := uc.Start(ctx, "s1", model.FlowFull); err != nil {
		t.Fatal(err)
	}
	if _, err := uc.CapturePhoto(ctx, "s1", model.ImagePayload{DisplayContent: "data:image/jpeg;base64,aGVsbG8="}); err != nil {
		t.Fatal(err)
	}

	// The queued worker task and an HTTP poll can fire together; only one
	// may run the describe step.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := uc.ProcessEnrichment(ctx, "s1"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if n := vision.callCount(); n != 1 {
		t.Errorf("describe calls = %d, want 1", n)
	}
	state, err := uc.Current(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if state.FrontPhoto.DescriptionStatus != model.DescriptionDone {
		t.Errorf("description status = %s, want done", state.FrontPhoto.DescriptionStatus)
	}
}

func TestRegistrationEnrichmentDiscardsStaleResult(t *testing.T) {
	ctx := context.Background()
	repo := newMemStateRepo()
	stage := newFakeStage()

	// The describe call races a user skip: while it is in flight, the
	// session's photo stage is skipped. The late result must be discarded.
	vision := &fakeVisionUC{}
	vision.DescribeFunc = func(ctx context.Context, image model.ImagePayload) model.DescriptionResult {
		current, _ := repo.Load(ctx, "s1")
		current.SkipPhoto()
		_ = repo.Save(ctx, "s1", current)
		return model.DescriptionResult{Status: model.DescribeSuccess, Text: validJapaneseDescription}
	}
	uc := newTestOrchestrator(repo, &fakeLookupUC{}, vision, &fakeTagsUC{}, &fakeCommitUC{}, stage)

	if _, err := uc.Start(ctx, "s1", model.FlowFull); err != nil {
		t.Fatal(err)
	}
	if _, err := uc.CapturePhoto(ctx, "s1", model.ImagePayload{DisplayContent: "data:image/jpeg;base64,aGVsbG8="}); err != nil {
		t.Fatal(err)
	}

	state, err := uc.ProcessEnrichment(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if state.FrontPhoto.DescriptionStatus != model.DescriptionSkipped {
		t.Errorf("description status = %s, want skipped to win", state.FrontPhoto.DescriptionStatus)
	}
	if state.FrontPhoto.Description != "" {
		t.Errorf("stale description written back: %q", state.FrontPhoto.Description)
	}
}

func TestRegistrationEnrichmentError(t *testing.T) {
	ctx := context.Background()
	repo := newMemStateRepo()
	vision := &fakeVisionUC{DescribeFunc: func(ctx context.Context, image model.ImagePayload) model.DescriptionResult {
		return model.DescriptionResult{Status: model.DescribeError, Message: "画像解析API通信エラー: boom"}
	}}
	tags := &fakeTagsUC{}
	uc := newTestOrchestrator(repo, &fakeLookupUC{}, vision, tags, &fakeCommitUC{}, newFakeStage())

	if _, err := uc.Start(ctx, "s1", model.FlowFull); err != nil {
		t.Fatal(err)
	}
	if _, err := uc.CapturePhoto(ctx, "s1", model.ImagePayload{DisplayContent: "data:image/jpeg;base64,aGVsbG8="}); err != nil {
		t.Fatal(err)
	}

	state, err := uc.ProcessEnrichment(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if state.FrontPhoto.DescriptionStatus != model.DescriptionError {
		t.Errorf("description status = %s, want error", state.FrontPhoto.DescriptionStatus)
	}
	// The description stage failing must not block tag synthesis from the
	// remaining sources.
	if n := len(tags.Descriptions); n == 0 || tags.Descriptions[n-1] != "" {
		t.Errorf("tags must synthesize without a description, got %v", tags.Descriptions)
	}
}

func TestRegistrationNextRoute(t *testing.T) {
	uc := newTestOrchestrator(newMemStateRepo(), &fakeLookupUC{}, &fakeVisionUC{}, &fakeTagsUC{}, &fakeCommitUC{}, newFakeStage())

	full := model.NewRegistrationState(model.FlowFull)
	if got := uc.NextRoute(full); got != RouteBarcode {
		t.Errorf("fresh full flow route = %s", got)
	}
	full.SkipBarcode()
	if got := uc.NextRoute(full); got != RoutePhoto {
		t.Errorf("after barcode stage route = %s", got)
	}
	full.SkipPhoto()
	if got := uc.NextRoute(full); got != RouteReview {
		t.Errorf("after photo stage route = %s", got)
	}

	quick := model.NewRegistrationState(model.FlowQuick)
	if got := uc.NextRoute(quick); got != RouteBarcode {
		t.Errorf("fresh quick flow route = %s", got)
	}
	quick.SetBarcodeManual("4901234567890")
	if got := uc.NextRoute(quick); got != RouteCommit {
		t.Errorf("quick flow with barcode route = %s", got)
	}
}

func TestRegistrationCommitGate(t *testing.T) {
	ctx := context.Background()
	repo := newMemStateRepo()
	commit := &fakeCommitUC{}
	uc := newTestOrchestrator(repo, &fakeLookupUC{}, &fakeVisionUC{}, &fakeTagsUC{}, commit, newFakeStage())

	t.Run("full flow blocks until both stages resolve", func(t *testing.T) {
		if _, err := uc.Start(ctx, "s1", model.FlowFull); err != nil {
			t.Fatal(err)
		}
		res, err := uc.Commit(ctx, "s1", adapter.ProductFields{ProductName: "x"})
		if err != nil {
			t.Fatal(err)
		}
		if res.Status != model.SaveBusinessError {
			t.Fatalf("status = %s, want business_error", res.Status)
		}
		if commit.Calls != 0 {
			t.Error("gate violation must not reach the persistence adapter")
		}
		// The violation is recorded on the session banner.
		state, _ := uc.Current(ctx, "s1")
		if state.Meta.LastSaveStatus != model.SaveBusinessError {
			t.Errorf("banner status = %s", state.Meta.LastSaveStatus)
		}
	})

	t.Run("resolved stages pass the gate", func(t *testing.T) {
		if _, err := uc.Start(ctx, "s2", model.FlowFull); err != nil {
			t.Fatal(err)
		}
		if _, err := uc.SkipBarcode(ctx, "s2"); err != nil {
			t.Fatal(err)
		}
		if _, err := uc.SkipPhoto(ctx, "s2"); err != nil {
			t.Fatal(err)
		}
		res, err := uc.Commit(ctx, "s2", adapter.ProductFields{ProductName: "x"})
		if err != nil {
			t.Fatal(err)
		}
		if res.Status != model.SaveSuccess {
			t.Fatalf("status = %s (%s)", res.Status, res.Message)
		}
		if commit.Calls != 1 {
			t.Errorf("commit calls = %d", commit.Calls)
		}
	})
}

func TestRegistrationCommitRetryAfterSystemError(t *testing.T) {
	ctx := context.Background()
	repo := newMemStateRepo()
	stage := newFakeStage()
	records := &fakeRecordStore{InsertProductErr: errors.New("deadlock")}
	assets := &fakeAssetStore{Ops: records}
	commit := NewCommitUseCase(records, assets, stage, newTestLogger())
	uc := NewRegistrationUseCase(repo, &fakeLookupUC{}, &fakeVisionUC{}, &fakeTagsUC{}, commit, stage, nil, newTestLogger())

	if _, err := uc.Start(ctx, "s1", model.FlowQuick); err != nil {
		t.Fatal(err)
	}
	path, _ := stage.Stage([]byte("jpeg-bytes"))
	if _, err := uc.CapturePhoto(ctx, "s1", model.ImagePayload{DisplayContent: "data:image/jpeg;base64,aGVsbG8=", TempPath: path}); err != nil {
		t.Fatal(err)
	}

	res, err := uc.Commit(ctx, "s1", adapter.ProductFields{ProductName: "缶バッジ"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != model.SaveSystemError {
		t.Fatalf("status = %s, want system_error", res.Status)
	}
	state, err := uc.Current(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if state.FrontPhoto.OriginalTmpPath != "" {
		t.Error("failed commit must drop the released staged path")
	}

	// The fault clears; the same session must commit cleanly off the
	// display payload.
	records.InsertProductErr = nil
	res, err = uc.Commit(ctx, "s1", adapter.ProductFields{ProductName: "缶バッジ"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != model.SaveSuccess {
		t.Fatalf("retry status = %s (%s), want success", res.Status, res.Message)
	}
	if n := len(assets.Uploaded); n != 2 || string(assets.Uploaded[1]) != "hello" {
		t.Errorf("retry must upload the display payload, uploads = %d", n)
	}
}

func TestRegistrationAbandonReleasesStagedPhoto(t *testing.T) {
	ctx := context.Background()
	repo := newMemStateRepo()
	stage := newFakeStage()
	uc := newTestOrchestrator(repo, &fakeLookupUC{}, &fakeVisionUC{}, &fakeTagsUC{}, &fakeCommitUC{}, stage)

	if _, err := uc.Start(ctx, "s1", model.FlowFull); err != nil {
		t.Fatal(err)
	}
	path, _ := stage.Stage([]byte("jpeg"))
	if _, err := uc.CapturePhoto(ctx, "s1", model.ImagePayload{DisplayContent: "data:image/jpeg;base64,aGVsbG8=", TempPath: path}); err != nil {
		t.Fatal(err)
	}

	if err := uc.Abandon(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if stage.held(path) {
		t.Error("abandon must release the staged photo")
	}
	if _, err := uc.Current(ctx, "s1"); !isNotFound(err) {
		t.Errorf("session should be cleared, got err=%v", err)
	}
}
