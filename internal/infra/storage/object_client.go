package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"goods-registration/internal/config"
	"goods-registration/internal/domain/ports/adapter"
)

var _ adapter.AssetStore = (*ObjectClient)(nil)

// ObjectClient uploads asset bytes to a hosted object-storage bucket over
// its REST surface. A failed upload is retried once after attempting to
// create the bucket, mirroring first-run deployments where the bucket does
// not exist yet.
type ObjectClient struct {
	endpoint string // e.g. https://<project>.supabase.co/storage/v1
	apiKey   string
	bucket   string
	client   *http.Client
}

func NewObjectClient(cfg config.StorageConfig) *ObjectClient {
	return &ObjectClient{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		bucket:   cfg.Bucket,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *ObjectClient) Configured() bool { return c.endpoint != "" && c.apiKey != "" }

// Upload stores data under a random name derived from the original
// extension and returns the public URL.
func (c *ObjectClient) Upload(ctx context.Context, data []byte, name, contentType string) (string, error) {
	ext := "jpg"
	if i := strings.LastIndex(name, "."); i >= 0 && i < len(name)-1 {
		ext = name[i+1:]
	}
	objectName := fmt.Sprintf("%s.%s", uuid.NewString(), ext)
	if contentType == "" {
		contentType = "image/" + ext
	}

	if err := c.put(ctx, objectName, data, contentType); err != nil {
		// Bucket may not exist yet: create it public and retry once.
		if cErr := c.createBucket(ctx); cErr != nil {
			return "", fmt.Errorf("upload %s: %w (bucket create: %v)", objectName, err, cErr)
		}
		if err = c.put(ctx, objectName, data, contentType); err != nil {
			return "", fmt.Errorf("upload %s: %w", objectName, err)
		}
	}
	return fmt.Sprintf("%s/object/public/%s/%s", c.endpoint, c.bucket, objectName), nil
}

func (c *ObjectClient) put(ctx context.Context, objectName string, data []byte, contentType string) error {
	url := fmt.Sprintf("%s/object/%s/%s", c.endpoint, c.bucket, objectName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("storage http %d", resp.StatusCode)
	}
	return nil
}

func (c *ObjectClient) createBucket(ctx context.Context) error {
	body := fmt.Sprintf(`{"name":%q,"public":true}`, c.bucket)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/bucket", strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// 409: already exists, fine.
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusConflict {
		return fmt.Errorf("create bucket http %d", resp.StatusCode)
	}
	return nil
}
