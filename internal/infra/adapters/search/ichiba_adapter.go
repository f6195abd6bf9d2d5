package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"goods-registration/internal/config"
	"goods-registration/internal/domain/ports/adapter"
)

var _ adapter.ProductSearchAdapter = (*IchibaAdapter)(nil)

// IchibaAdapter queries the Rakuten Ichiba item-search API. It returns raw
// records only; status decisions and name cleaning live in the lookup
// use case.
type IchibaAdapter struct {
	endpoint      string
	applicationID string
	affiliateID   string
	hits          int
	client        *http.Client
}

func NewIchibaAdapter(cfg config.SearchConfig) *IchibaAdapter {
	return &IchibaAdapter{
		endpoint:      cfg.Endpoint,
		applicationID: cfg.ApplicationID,
		affiliateID:   cfg.AffiliateID,
		hits:          cfg.Hits,
		client:        &http.Client{Timeout: cfg.Timeout},
	}
}

func (a *IchibaAdapter) Configured() bool { return a.applicationID != "" }

func (a *IchibaAdapter) Search(ctx context.Context, keyword, identifierHint string) ([]adapter.RawSearchItem, error) {
	q := url.Values{}
	q.Set("applicationId", a.applicationID)
	q.Set("format", "json")
	q.Set("hits", strconv.Itoa(a.hits))
	q.Set("imageFlag", "1")
	q.Set("keyword", keyword)
	if a.affiliateID != "" {
		q.Set("affiliateId", a.affiliateID)
	}
	if identifierHint != "" {
		q.Set("isbnjan", identifierHint)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ichiba http %d", resp.StatusCode)
	}

	var payload struct {
		Items []struct {
			Item struct {
				ItemName        string `json:"itemName"`
				ItemPrice       *int   `json:"itemPrice"`
				ItemURL         string `json:"itemUrl"`
				AffiliateURL    string `json:"affiliateUrl"`
				MediumImageURLs []struct {
					ImageURL string `json:"imageUrl"`
				} `json:"mediumImageUrls"`
				ShopName string          `json:"shopName"`
				GenreID  json.RawMessage `json:"genreId"`
				ItemCode string          `json:"itemCode"`
				JANCode  string          `json:"janCode"`
				ISBNJan  string          `json:"isbnjan"`
			} `json:"Item"`
		} `json:"Items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("ichiba decode: %w", err)
	}

	out := make([]adapter.RawSearchItem, 0, len(payload.Items))
	for _, entry := range payload.Items {
		it := entry.Item
		jan := it.JANCode
		if jan == "" {
			jan = it.ISBNJan
		}
		var images []string
		for _, img := range it.MediumImageURLs {
			if img.ImageURL != "" {
				images = append(images, img.ImageURL)
			}
		}
		out = append(out, adapter.RawSearchItem{
			Name:         it.ItemName,
			Price:        it.ItemPrice,
			URL:          it.ItemURL,
			AffiliateURL: it.AffiliateURL,
			ImageURLs:    images,
			ShopName:     it.ShopName,
			// genreId arrives as either a number or a quoted string.
			GenreID:  strings.Trim(string(it.GenreID), `"`),
			ItemCode: it.ItemCode,
			JAN:      jan,
		})
	}
	return out, nil
}
