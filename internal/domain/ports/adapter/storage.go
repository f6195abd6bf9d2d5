package adapter

import "context"

// PhotoMeta is the metadata row written before asset upload; URLs are filled
// in afterwards via UpdatePhotoURLs.
type PhotoMeta struct {
	MemberID  string
	FrontFlag int
}

// ProductFields are the persisted product columns. Optional fields stay
// empty/nil rather than defaulted here.
type ProductFields struct {
	MemberID         string
	Barcode          string
	BarcodeType      string
	ProductName      string
	ProductGroupName string
	WorksSeriesName  string
	Title            string
	CharacterName    string
	PurchasePrice    *int
	PurchaseLocation string
	Memo             string
}

// RecordStore is the port for the hosted backend's structured records.
type RecordStore interface {
	InsertPhoto(ctx context.Context, meta PhotoMeta) (int64, error)
	InsertProduct(ctx context.Context, fields ProductFields, photoID *int64) (int64, error)
	UpdatePhotoURLs(ctx context.Context, photoID int64, highResURL, thumbnailURL string) error
}

// AssetStore is the port for object-storage uploads. Upload returns the
// public URL of the stored object.
type AssetStore interface {
	Upload(ctx context.Context, data []byte, name, contentType string) (string, error)
}
