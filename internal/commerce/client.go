package commerce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"

	"golang.org/x/time/rate"
)

// ErrNotFound is returned when the backend answers 404.
var ErrNotFound = errors.New("not found")

type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logger.Logger
}

// NewClient builds a client that issues at most requestsPerSecond calls per
// second; zero disables throttling.
func NewClient(baseURL, apiToken string, timeout time.Duration, requestsPerSecond int, logger *logger.Logger) *Client {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// GetPromotions fetches every promotion of one type
func (c *Client) GetPromotions(ctx context.Context, promotionType models.PromotionType) ([]Promotion, error) {
	q := url.Values{}
	q.Set("type", string(promotionType))

	var promotions []Promotion
	if err := c.get(ctx, "/v1/promotions", q, &promotions); err != nil {
		return nil, fmt.Errorf("failed to fetch %s promotions: %w", promotionType, err)
	}
	return promotions, nil
}

// ProductFullSync fetches one page of the full product feed for a store
func (c *Client) ProductFullSync(ctx context.Context, storeID string, page, pageSize int) (*ProductPage, error) {
	q := url.Values{}
	q.Set("store_id", storeID)
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))

	var productPage ProductPage
	if err := c.get(ctx, "/v1/products", q, &productPage); err != nil {
		return nil, fmt.Errorf("failed to fetch products page %d: %w", page, err)
	}
	if productPage.Page == 0 {
		productPage.Page = page
	}
	if productPage.PageSize == 0 {
		productPage.PageSize = pageSize
	}
	return &productPage, nil
}

// GetCategoryTree fetches the category tree below root, or below the
// backend's default root when root is nil.
func (c *Client) GetCategoryTree(ctx context.Context, root *int64) (*Category, error) {
	q := url.Values{}
	if root != nil {
		q.Set("root", strconv.FormatInt(*root, 10))
	}

	var tree Category
	if err := c.get(ctx, "/v1/categories", q, &tree); err != nil {
		return nil, fmt.Errorf("failed to fetch category tree: %w", err)
	}
	return &tree, nil
}

// GetStock fetches the live stock of one SKU
func (c *Client) GetStock(ctx context.Context, sku string) (*StockMessage, error) {
	var stock StockMessage
	if err := c.get(ctx, "/v1/stock/"+url.PathEscape(sku), nil, &stock); err != nil {
		return nil, fmt.Errorf("failed to fetch stock for %s: %w", sku, err)
	}
	if stock.SKU == "" {
		stock.SKU = sku
	}
	return &stock, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}

	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("GET %s -> %d in %s", req.URL.String(), resp.StatusCode, time.Since(start))

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("API request failed: %d - %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
