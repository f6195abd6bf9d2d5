package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4/pgxpool"

	"goods-registration/internal/domain"
	"goods-registration/internal/domain/ports/adapter"
)

var _ adapter.RecordStore = (*RecordStore)(nil)

// RecordStore persists photo and product rows in the hosted backend's
// Postgres. Table and column names follow the existing schema
// (photo, registration_product_information).
type RecordStore struct {
	pool *pgxpool.Pool
}

func NewRecordStore(pool *pgxpool.Pool) *RecordStore {
	return &RecordStore{pool: pool}
}

func (r *RecordStore) InsertPhoto(ctx context.Context, meta adapter.PhotoMeta) (int64, error) {
	const q = `
INSERT INTO photo (
  members_id, photo_thumbnail_url, photo_high_resolution_url, front_flag,
  photo_registration_date, photo_edit_date
) VALUES ($1, '', '', $2, NOW(), NOW())
RETURNING photo_id;
`
	var id int64
	if err := r.pool.QueryRow(ctx, q, meta.MemberID, meta.FrontFlag).Scan(&id); err != nil {
		return 0, classify("insert photo", err)
	}
	return id, nil
}

func (r *RecordStore) UpdatePhotoURLs(ctx context.Context, photoID int64, highResURL, thumbnailURL string) error {
	const q = `
UPDATE photo
   SET photo_high_resolution_url=$2, photo_thumbnail_url=$3, photo_edit_date=NOW()
 WHERE photo_id=$1;
`
	tag, err := r.pool.Exec(ctx, q, photoID, highResURL, thumbnailURL)
	if err != nil {
		return classify("update photo urls", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update photo urls: photo %d: %w", photoID, domain.ErrNotFound)
	}
	return nil
}

func (r *RecordStore) InsertProduct(ctx context.Context, f adapter.ProductFields, photoID *int64) (int64, error) {
	const q = `
INSERT INTO registration_product_information (
  members_id, photo_id, barcode, barcode_type,
  product_name, product_group_name, works_series_name, title, character_name,
  purchase_price, purchase_location, memo,
  product_series_flag, product_series_complete_flag, commercial_product_flag,
  personal_product_flag, digital_product_flag, sales_desired_flag,
  want_object_flag, flag_with_freebie
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,0,0,1,0,0,0,0,0
)
RETURNING product_id;
`
	var id int64
	err := r.pool.QueryRow(ctx, q,
		f.MemberID, photoID, f.Barcode, f.BarcodeType,
		f.ProductName, f.ProductGroupName, f.WorksSeriesName, f.Title, f.CharacterName,
		f.PurchasePrice, f.PurchaseLocation, f.Memo,
	).Scan(&id)
	if err != nil {
		return 0, classify("insert product", err)
	}
	return id, nil
}

// classify maps Postgres error classes onto the domain taxonomy: integrity
// violations are business errors, everything else stays a system error.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 23xxx: integrity constraint violations
		if len(pgErr.Code) == 5 && pgErr.Code[:2] == "23" {
			return fmt.Errorf("%s: %s: %w", op, pgErr.Message, domain.ErrBusinessRule)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
