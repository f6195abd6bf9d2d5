package model

// ProductCandidate is a normalized commerce search result. Immutable once
// constructed by the lookup use case.
type ProductCandidate struct {
	Name      string   `json:"name"`
	RawName   string   `json:"raw_name"`
	Price     *int     `json:"price,omitempty"`
	ShopName  string   `json:"shop_name,omitempty"`
	URL       string   `json:"url,omitempty"`
	ImageURLs []string `json:"image_urls,omitempty"`
	JAN       string   `json:"jan,omitempty"`
	ItemCode  string   `json:"item_code,omitempty"`
	// Low-confidence hints split out of the raw name. Auto-fill only,
	// never authoritative.
	Brand  string `json:"brand,omitempty"`
	Series string `json:"series,omitempty"`
}

// LookupResult is the outcome of one commerce lookup call.
type LookupResult struct {
	Status  LookupStatus
	Items   []ProductCandidate
	Message string
	Source  string
	Keyword string
}

// DescriptionResult is the outcome of one vision description call.
type DescriptionResult struct {
	Status         DescriptionOutcome
	Text           string
	StructuredData *StructuredData
	ModelUsed      string
	Message        string
}

// DescriptionOutcome classifies a describe call. Provider failures are
// encoded here, never raised.
type DescriptionOutcome string

const (
	DescribeSuccess            DescriptionOutcome = "success"
	DescribeMissingCredentials DescriptionOutcome = "missing_credentials"
	DescribeInvalid            DescriptionOutcome = "invalid"
	DescribeError              DescriptionOutcome = "error"
)

// TagResult is the outcome of one tag synthesis run.
type TagResult struct {
	Status  TagStatus
	Tags    []string
	Message string
}

// ImagePayload carries both a display-ready encoded image and, when
// available, a reduced-resolution raw encoding optimized for model upload.
type ImagePayload struct {
	DisplayContent string // data URL for preview/thumbnail
	RawBase64      string // reduced-resolution JPEG, bare base64
	ContentType    string
	Filename       string
	PublicURL      string // optional pre-uploaded copy for URL-only variants
	TempPath       string // staged original bytes, owned by the session
}

// UploadSource picks the best payload to send to a vision model: a public
// URL when one exists, otherwise the reduced data URL, otherwise the
// display content.
func (p ImagePayload) UploadSource() string {
	if p.PublicURL != "" {
		return p.PublicURL
	}
	if p.RawBase64 != "" {
		return "data:image/jpeg;base64," + p.RawBase64
	}
	return p.DisplayContent
}

// Empty reports whether the payload carries no image data at all.
func (p ImagePayload) Empty() bool {
	return p.DisplayContent == "" && p.RawBase64 == "" && p.PublicURL == ""
}

// CommitResult is the outcome of persisting a registration.
type CommitResult struct {
	Status      SaveStatus
	Message     string
	PhotoID     *int64
	ProductID   *int64
	ProductName string
}
