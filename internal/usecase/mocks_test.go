// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"goods-registration/internal/domain"
	"goods-registration/internal/domain/model"
	"goods-registration/internal/domain/ports/adapter"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// ---- AI adapter fake ----

type chatCall struct {
	Model    string
	Messages []adapter.Message
}

// fakeAI replays a scripted queue of replies; ChatFunc overrides the queue
// when set.
type fakeAI struct {
	mu         sync.Mutex
	Unready    bool
	ChatFunc   func(ctx context.Context, model string, messages []adapter.Message, temperature float64) (string, error)
	Replies    []string
	Errs       []error
	Calls      []chatCall
	defaultTxt string
}

func (f *fakeAI) Provider() string { return "fake" }
func (f *fakeAI) Configured() bool { return !f.Unready }

func (f *fakeAI) Chat(ctx context.Context, model string, messages []adapter.Message, temperature float64) (string, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, chatCall{Model: model, Messages: messages})
	n := len(f.Calls) - 1
	f.mu.Unlock()

	if f.ChatFunc != nil {
		return f.ChatFunc(ctx, model, messages, temperature)
	}
	if n < len(f.Errs) && f.Errs[n] != nil {
		return "", f.Errs[n]
	}
	if n < len(f.Replies) {
		return f.Replies[n], nil
	}
	return f.defaultTxt, nil
}

func (f *fakeAI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

// ---- search adapter fake ----

type fakeSearch struct {
	Unready    bool
	SearchFunc func(ctx context.Context, keyword, identifierHint string) ([]adapter.RawSearchItem, error)
	Keywords   []string
}

func (f *fakeSearch) Configured() bool { return !f.Unready }

func (f *fakeSearch) Search(ctx context.Context, keyword, identifierHint string) ([]adapter.RawSearchItem, error) {
	f.Keywords = append(f.Keywords, keyword)
	if f.SearchFunc != nil {
		return f.SearchFunc(ctx, keyword, identifierHint)
	}
	return nil, nil
}

// ---- state repository fake ----

// memStateRepo is an in-memory session store. Clone on both paths so tests
// observe the same value-isolation as the Redis implementation.
type memStateRepo struct {
	mu      sync.RWMutex
	store   map[string]*model.RegistrationState
	saveErr error
}

func newMemStateRepo() *memStateRepo {
	return &memStateRepo{store: make(map[string]*model.RegistrationState)}
}

func (m *memStateRepo) Save(ctx context.Context, sessionID string, state *model.RegistrationState) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[sessionID] = state.Clone()
	return nil
}

func (m *memStateRepo) Load(ctx context.Context, sessionID string) (*model.RegistrationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.Clone(), nil
}

func (m *memStateRepo) Clear(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, sessionID)
	return nil
}

// ---- persistence fakes ----

// fakeRecordStore logs operation order so write-order assertions are exact.
type fakeRecordStore struct {
	Ops []string

	InsertPhotoErr    error
	InsertProductErr  error
	UpdatePhotoErr    error
	NextPhotoID       int64
	NextProductID     int64
	LastFields        adapter.ProductFields
	LastPhotoID       *int64
	UpdatedHighRes    string
	UpdatedThumbnail  string
	UpdatedForPhotoID int64
}

func (f *fakeRecordStore) InsertPhoto(ctx context.Context, meta adapter.PhotoMeta) (int64, error) {
	f.Ops = append(f.Ops, "insert_photo")
	if f.InsertPhotoErr != nil {
		return 0, f.InsertPhotoErr
	}
	if f.NextPhotoID == 0 {
		f.NextPhotoID = 101
	}
	return f.NextPhotoID, nil
}

func (f *fakeRecordStore) InsertProduct(ctx context.Context, fields adapter.ProductFields, photoID *int64) (int64, error) {
	f.Ops = append(f.Ops, "insert_product")
	f.LastFields = fields
	f.LastPhotoID = photoID
	if f.InsertProductErr != nil {
		return 0, f.InsertProductErr
	}
	if f.NextProductID == 0 {
		f.NextProductID = 201
	}
	return f.NextProductID, nil
}

func (f *fakeRecordStore) UpdatePhotoURLs(ctx context.Context, photoID int64, highResURL, thumbnailURL string) error {
	f.Ops = append(f.Ops, "update_photo_urls")
	f.UpdatedForPhotoID = photoID
	f.UpdatedHighRes = highResURL
	f.UpdatedThumbnail = thumbnailURL
	return f.UpdatePhotoErr
}

type fakeAssetStore struct {
	Ops       *fakeRecordStore // shared op log when write order spans stores
	UploadErr error
	URL       string
	Uploaded  [][]byte
}

func (f *fakeAssetStore) Upload(ctx context.Context, data []byte, name, contentType string) (string, error) {
	if f.Ops != nil {
		f.Ops.Ops = append(f.Ops.Ops, "upload_asset")
	}
	f.Uploaded = append(f.Uploaded, data)
	if f.UploadErr != nil {
		return "", f.UploadErr
	}
	if f.URL == "" {
		f.URL = "https://assets.example/photos/a.jpg"
	}
	return f.URL, nil
}

// fakeStage keeps staged bytes in a map and records every release.
type fakeStage struct {
	mu       sync.Mutex
	files    map[string][]byte
	seq      int
	Released []string
	ReadErr  error
}

func newFakeStage() *fakeStage {
	return &fakeStage{files: make(map[string][]byte)}
}

func (f *fakeStage) Stage(data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	path := fmt.Sprintf("/tmp/front_photo_%d.jpg", f.seq)
	f.files[path] = data
	return path, nil
}

func (f *fakeStage) Read(path string) ([]byte, error) {
	if f.ReadErr != nil {
		return nil, f.ReadErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

func (f *fakeStage) Release(path string) error {
	if path == "" {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Released = append(f.Released, path)
	delete(f.files, path)
	return nil
}

func (f *fakeStage) held(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[path]
	return ok
}

// ---- use case fakes for orchestrator tests ----

type fakeLookupUC struct {
	LookupFunc func(ctx context.Context, keyword string, source LookupSource) model.LookupResult
	Keywords   []string
}

func (f *fakeLookupUC) Lookup(ctx context.Context, keyword string, source LookupSource) model.LookupResult {
	f.Keywords = append(f.Keywords, keyword)
	if f.LookupFunc != nil {
		return f.LookupFunc(ctx, keyword, source)
	}
	return model.LookupResult{Status: model.LookupNotFound, Items: []model.ProductCandidate{}}
}

type fakeVisionUC struct {
	mu           sync.Mutex
	DescribeFunc func(ctx context.Context, image model.ImagePayload) model.DescriptionResult
	Calls        int
}

func (f *fakeVisionUC) Describe(ctx context.Context, image model.ImagePayload) model.DescriptionResult {
	f.mu.Lock()
	f.Calls++
	f.mu.Unlock()
	if f.DescribeFunc != nil {
		return f.DescribeFunc(ctx, image)
	}
	return model.DescriptionResult{Status: model.DescribeSuccess, Text: "黒いアクリルスタンドです。", ModelUsed: "m"}
}

func (f *fakeVisionUC) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls
}

type fakeTagsUC struct {
	SynthesizeFunc func(ctx context.Context, candidates []model.ProductCandidate, description string, image model.ImagePayload) model.TagResult
	Descriptions   []string
}

func (f *fakeTagsUC) Synthesize(ctx context.Context, candidates []model.ProductCandidate, description string, image model.ImagePayload) model.TagResult {
	f.Descriptions = append(f.Descriptions, description)
	if f.SynthesizeFunc != nil {
		return f.SynthesizeFunc(ctx, candidates, description, image)
	}
	return model.TagResult{Status: model.TagsSuccess, Tags: []string{"タグ"}}
}

type fakeCommitUC struct {
	CommitFunc func(ctx context.Context, state *model.RegistrationState, fields adapter.ProductFields) model.CommitResult
	Calls      int
}

func (f *fakeCommitUC) Commit(ctx context.Context, state *model.RegistrationState, fields adapter.ProductFields) model.CommitResult {
	f.Calls++
	if f.CommitFunc != nil {
		return f.CommitFunc(ctx, state, fields)
	}
	return model.CommitResult{Status: model.SaveSuccess, Message: "ok"}
}
