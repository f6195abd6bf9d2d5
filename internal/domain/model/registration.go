package model

import "strings"

// Flow selects the registration path: the full flow walks barcode, photo,
// enrichment and review; the quick flow commits as soon as either input exists.
type Flow string

const (
	FlowFull  Flow = "goods_full"
	FlowQuick Flow = "goods_quick"
)

// SaveStatus classifies the outcome of the last commit attempt.
type SaveStatus string

const (
	SaveSuccess       SaveStatus = "success"
	SaveBusinessError SaveStatus = "business_error"
	SaveSystemError   SaveStatus = "system_error"
)

// BarcodeStatus tracks the barcode stage.
type BarcodeStatus string

const (
	BarcodeIdle          BarcodeStatus = "idle"
	BarcodeCaptured      BarcodeStatus = "captured"
	BarcodeManual        BarcodeStatus = "manual"
	BarcodeManualPending BarcodeStatus = "manual_pending"
	BarcodeSkipped       BarcodeStatus = "skipped"
	BarcodeError         BarcodeStatus = "error"
)

// BarcodeSource records how the barcode value was obtained.
type BarcodeSource string

const (
	SourceCamera BarcodeSource = "camera"
	SourceUpload BarcodeSource = "upload"
	SourceManual BarcodeSource = "manual"
	SourceSkip   BarcodeSource = "skip"
)

// PhotoStatus tracks the front-photo stage.
type PhotoStatus string

const (
	PhotoIdle     PhotoStatus = "idle"
	PhotoCaptured PhotoStatus = "captured"
	PhotoSkipped  PhotoStatus = "skipped"
)

// DescriptionStatus gates the vision enrichment pipeline. Legal transitions:
// idle -> pending -> processing -> done|error, plus idle -> skipped.
type DescriptionStatus string

const (
	DescriptionIdle       DescriptionStatus = "idle"
	DescriptionPending    DescriptionStatus = "pending"
	DescriptionProcessing DescriptionStatus = "processing"
	DescriptionDone       DescriptionStatus = "done"
	DescriptionError      DescriptionStatus = "error"
	DescriptionSkipped    DescriptionStatus = "skipped"
)

// LookupStatus classifies a commerce lookup outcome.
type LookupStatus string

const (
	LookupIdle               LookupStatus = "idle"
	LookupSuccess            LookupStatus = "success"
	LookupNotFound           LookupStatus = "not_found"
	LookupError              LookupStatus = "error"
	LookupSkipped            LookupStatus = "skipped"
	LookupInvalid            LookupStatus = "invalid"
	LookupMissingCredentials LookupStatus = "missing_credentials"
)

// TagStatus classifies the tag synthesis outcome.
type TagStatus string

const (
	TagsIdle     TagStatus = "idle"
	TagsNotReady TagStatus = "not_ready"
	TagsLoading  TagStatus = "loading"
	TagsSuccess  TagStatus = "success"
	TagsError    TagStatus = "error"
)

// Meta carries flow selection and the last save banner.
type Meta struct {
	Flow            Flow       `json:"flow"`
	LastSaveMessage string     `json:"last_save_message,omitempty"`
	LastSaveStatus  SaveStatus `json:"last_save_status,omitempty"`
}

// BarcodeState is the barcode sub-state of a registration attempt.
type BarcodeState struct {
	Value    string        `json:"value,omitempty"`
	Type     string        `json:"type,omitempty"`
	Status   BarcodeStatus `json:"status"`
	Source   BarcodeSource `json:"source,omitempty"`
	Filename string        `json:"filename,omitempty"`
}

// StructuredData holds best-effort fields extracted from a description.
// Absent matches stay empty; the extractor never guesses.
type StructuredData struct {
	CharacterName string   `json:"character_name,omitempty"`
	WorkName      string   `json:"work_name,omitempty"`
	Shape         string   `json:"shape,omitempty"`
	Colors        []string `json:"colors,omitempty"`
	Materials     []string `json:"materials,omitempty"`
	Features      []string `json:"features,omitempty"`
}

// FrontPhotoState is the photo sub-state, including vision enrichment results.
type FrontPhotoState struct {
	Content           string            `json:"content,omitempty"` // display-ready data URL
	Filename          string            `json:"filename,omitempty"`
	ContentType       string            `json:"content_type,omitempty"`
	Status            PhotoStatus       `json:"status"`
	Description       string            `json:"description,omitempty"`
	ModelUsed         string            `json:"model_used,omitempty"`
	DescriptionStatus DescriptionStatus `json:"description_status"`
	VisionSource      string            `json:"vision_source,omitempty"` // payload actually sent to the model
	VisionRaw         string            `json:"vision_raw,omitempty"`    // reduced-resolution raw base64
	StructuredData    *StructuredData   `json:"structured_data,omitempty"`
	OriginalTmpPath   string            `json:"original_tmp_path,omitempty"`
}

// LookupState is the commerce lookup sub-state.
type LookupState struct {
	Status  LookupStatus       `json:"status"`
	Items   []ProductCandidate `json:"items"`
	Message string             `json:"message"`
	Source  string             `json:"source,omitempty"`
	Keyword string             `json:"keyword,omitempty"`
}

// TagState is the synthesized tag sub-state. Tags keep insertion order and
// are unique case-insensitively whenever Status == TagsSuccess.
type TagState struct {
	Status  TagStatus `json:"status"`
	Tags    []string  `json:"tags"`
	Message string    `json:"message"`
}

// ColorTagState holds selected color-tag slots (1..7).
type ColorTagState struct {
	SelectedSlots []int `json:"selected_slots"`
}

// RegistrationState is the canonical record of one registration attempt.
// It is owned by a single session; all mutation goes through the methods
// below so the stage invariants cannot be bypassed.
type RegistrationState struct {
	AttemptID  string          `json:"attempt_id,omitempty"`
	Meta       Meta            `json:"meta"`
	Barcode    BarcodeState    `json:"barcode"`
	FrontPhoto FrontPhotoState `json:"front_photo"`
	Lookup     LookupState     `json:"lookup"`
	Tags       TagState        `json:"tags"`
	ColorTags  ColorTagState   `json:"color_tags"`
}

// NewRegistrationState returns a fresh empty state for the given flow.
func NewRegistrationState(flow Flow) *RegistrationState {
	if flow == "" {
		flow = FlowFull
	}
	return &RegistrationState{
		Meta:       Meta{Flow: flow},
		Barcode:    BarcodeState{Status: BarcodeIdle},
		FrontPhoto: FrontPhotoState{Status: PhotoIdle, DescriptionStatus: DescriptionIdle},
		Lookup:     LookupState{Status: LookupIdle, Items: []ProductCandidate{}},
		Tags:       TagState{Status: TagsIdle, Tags: []string{}},
		ColorTags:  ColorTagState{SelectedSlots: []int{}},
	}
}

// Ensure fills a possibly-partial state (e.g. deserialized from an external
// session payload) with defaults field by field. Nil input yields a fresh
// full-flow state.
func Ensure(s *RegistrationState) *RegistrationState {
	if s == nil {
		return NewRegistrationState(FlowFull)
	}
	out := s.Clone()
	if out.Meta.Flow == "" {
		out.Meta.Flow = FlowFull
	}
	if out.Barcode.Status == "" {
		out.Barcode.Status = BarcodeIdle
	}
	if out.FrontPhoto.Status == "" {
		out.FrontPhoto.Status = PhotoIdle
	}
	if out.FrontPhoto.DescriptionStatus == "" {
		out.FrontPhoto.DescriptionStatus = DescriptionIdle
	}
	if out.Lookup.Status == "" {
		out.Lookup.Status = LookupIdle
	}
	if out.Lookup.Items == nil {
		out.Lookup.Items = []ProductCandidate{}
	}
	if out.Tags.Status == "" {
		out.Tags.Status = TagsIdle
	}
	if out.Tags.Tags == nil {
		out.Tags.Tags = []string{}
	}
	if out.ColorTags.SelectedSlots == nil {
		out.ColorTags.SelectedSlots = []int{}
	}
	return out
}

// Clone returns a deep copy safe to hand to other goroutines or serializers.
func (s *RegistrationState) Clone() *RegistrationState {
	out := *s
	out.Lookup.Items = append([]ProductCandidate(nil), s.Lookup.Items...)
	for i := range out.Lookup.Items {
		out.Lookup.Items[i].ImageURLs = append([]string(nil), out.Lookup.Items[i].ImageURLs...)
	}
	out.Tags.Tags = append([]string(nil), s.Tags.Tags...)
	out.ColorTags.SelectedSlots = append([]int(nil), s.ColorTags.SelectedSlots...)
	if s.FrontPhoto.StructuredData != nil {
		sd := *s.FrontPhoto.StructuredData
		sd.Colors = append([]string(nil), s.FrontPhoto.StructuredData.Colors...)
		sd.Materials = append([]string(nil), s.FrontPhoto.StructuredData.Materials...)
		sd.Features = append([]string(nil), s.FrontPhoto.StructuredData.Features...)
		out.FrontPhoto.StructuredData = &sd
	}
	return &out
}

// SetBarcodeCaptured records a decoded barcode from camera or upload.
func (s *RegistrationState) SetBarcodeCaptured(value, barcodeType string, source BarcodeSource, filename string) {
	s.Barcode = BarcodeState{
		Value:    strings.TrimSpace(value),
		Type:     barcodeType,
		Status:   BarcodeCaptured,
		Source:   source,
		Filename: filename,
	}
}

// BeginManualBarcode switches the barcode stage to manual entry.
func (s *RegistrationState) BeginManualBarcode() {
	s.Barcode.Status = BarcodeManualPending
	s.Barcode.Source = SourceManual
	s.Barcode.Filename = ""
}

// SetBarcodeManual records a manually typed barcode value.
func (s *RegistrationState) SetBarcodeManual(value string) {
	s.Barcode = BarcodeState{
		Value:  strings.TrimSpace(value),
		Type:   "MANUAL",
		Status: BarcodeManual,
		Source: SourceManual,
	}
}

// SkipBarcode marks the barcode stage skipped. The value is cleared: a
// skipped stage never carries data.
func (s *RegistrationState) SkipBarcode() {
	s.Barcode = BarcodeState{Status: BarcodeSkipped, Source: SourceSkip}
	s.Lookup = LookupState{Status: LookupSkipped, Items: []ProductCandidate{}, Source: "skip"}
}

// ResetBarcode returns the barcode and lookup sub-states to their initial
// values so the user can retry. Any in-flight lookup result for the previous
// capture becomes stale and is discarded on write-back.
func (s *RegistrationState) ResetBarcode() {
	fresh := NewRegistrationState(s.Meta.Flow)
	s.Barcode = fresh.Barcode
	s.Lookup = fresh.Lookup
}

// SetBarcodeError marks the barcode stage failed with a retry affordance.
func (s *RegistrationState) SetBarcodeError(message string) {
	s.Barcode.Status = BarcodeError
	s.Lookup = LookupState{Status: LookupError, Items: []ProductCandidate{}, Message: message, Source: "barcode"}
}

// SetPhotoCaptured records a captured front photo and arms the enrichment
// pipeline: description goes pending, tags go loading.
func (s *RegistrationState) SetPhotoCaptured(p ImagePayload) {
	s.FrontPhoto = FrontPhotoState{
		Content:           p.DisplayContent,
		Filename:          p.Filename,
		ContentType:       p.ContentType,
		Status:            PhotoCaptured,
		DescriptionStatus: DescriptionPending,
		VisionSource:      p.UploadSource(),
		VisionRaw:         p.RawBase64,
		OriginalTmpPath:   p.TempPath,
	}
	s.Tags.Status = TagsLoading
	s.Tags.Message = "タグを生成中です..."
}

// SkipPhoto clears the photo stage and short-circuits enrichment.
func (s *RegistrationState) SkipPhoto() {
	s.FrontPhoto = FrontPhotoState{Status: PhotoSkipped, DescriptionStatus: DescriptionSkipped}
}

// AdvanceDescription moves the description gate forward. Illegal transitions
// are rejected so a late-arriving result for a skipped or retried stage can
// never clobber current state.
func (s *RegistrationState) AdvanceDescription(next DescriptionStatus) bool {
	cur := s.FrontPhoto.DescriptionStatus
	ok := false
	switch next {
	case DescriptionPending:
		ok = cur == DescriptionIdle
	case DescriptionProcessing:
		ok = cur == DescriptionPending
	case DescriptionDone, DescriptionError:
		ok = cur == DescriptionProcessing
	case DescriptionSkipped:
		ok = cur == DescriptionIdle
	}
	if ok {
		s.FrontPhoto.DescriptionStatus = next
	}
	return ok
}

// HasPhotoPayload reports whether photo bytes are recoverable, either from
// the staged original or the display content.
func (s *RegistrationState) HasPhotoPayload() bool {
	return s.FrontPhoto.OriginalTmpPath != "" || s.FrontPhoto.Content != ""
}

// Resolved reports whether the barcode stage reached a terminal sub-state.
func (b BarcodeStatus) Resolved() bool {
	switch b {
	case BarcodeCaptured, BarcodeManual, BarcodeSkipped:
		return true
	}
	return false
}

// Resolved reports whether the photo stage reached a terminal sub-state.
func (p PhotoStatus) Resolved() bool {
	switch p {
	case PhotoCaptured, PhotoSkipped:
		return true
	}
	return false
}

// CanCommit applies the commit gate. The full flow requires both stages
// resolved (captured, manual or skipped); the quick flow accepts either a
// barcode value or a captured photo.
func (s *RegistrationState) CanCommit() bool {
	if s.Meta.Flow == FlowQuick {
		return s.Barcode.Value != "" || (s.FrontPhoto.Status == PhotoCaptured && s.HasPhotoPayload())
	}
	return s.Barcode.Status.Resolved() && s.FrontPhoto.Status.Resolved()
}

// RecordSaveResult stores the last commit banner.
func (s *RegistrationState) RecordSaveResult(status SaveStatus, message string) {
	s.Meta.LastSaveStatus = status
	s.Meta.LastSaveMessage = message
}
