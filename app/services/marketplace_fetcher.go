package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/sneaker-price-ledger/utils"
)

// FetcherOptions configures a MarketplaceFetcher
type FetcherOptions struct {
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client
	Timeout    time.Duration
	PageSize   int
	PageDelay  time.Duration
	Clock      utils.Clock
	Logger     *log.Logger
}

// MarketplaceFetcher issues authenticated GET requests against the marketplace API and walks paged listings
type MarketplaceFetcher struct {
	baseURL    string
	userAgent  string
	auth       TokenAuthorizer
	httpClient *http.Client
	pageSize   int
	pageDelay  time.Duration
	clock      utils.Clock
	logger     *log.Logger
}

// NewMarketplaceFetcher creates a fetcher that authenticates through auth
func NewMarketplaceFetcher(auth TokenAuthorizer, opts FetcherOptions) *MarketplaceFetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = utils.MarketplacePageSize
	}
	pageDelay := opts.PageDelay
	if pageDelay < 0 {
		pageDelay = 0
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "price-ledger/1.0"
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &MarketplaceFetcher{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		userAgent:  userAgent,
		auth:       auth,
		httpClient: httpClient,
		pageSize:   pageSize,
		pageDelay:  pageDelay,
		clock:      utils.ClockOrSystem(opts.Clock),
		logger:     logger,
	}
}

// FetchAll requests every page of a listing endpoint and concatenates the items found under itemsKey.
// It stops when the response reports no next page or returns an empty page.
func (f *MarketplaceFetcher) FetchAll(ctx context.Context, endpoint string, params url.Values, itemsKey string) ([]json.RawMessage, error) {
	var all []json.RawMessage

	for page := 1; ; page++ {
		query := url.Values{}
		for k, v := range params {
			query[k] = append([]string(nil), v...)
		}
		query.Set("pageNumber", strconv.Itoa(page))
		query.Set("pageSize", strconv.Itoa(f.pageSize))

		var body map[string]json.RawMessage
		if err := f.GetJSON(ctx, endpoint, query, &body); err != nil {
			return nil, err
		}

		var items []json.RawMessage
		if raw, ok := body[itemsKey]; ok && len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, &NetworkError{Endpoint: endpoint, Err: fmt.Errorf("decode %s: %w", itemsKey, err)}
			}
		}
		all = append(all, items...)

		var hasNext bool
		if raw, ok := body["hasNextPage"]; ok {
			_ = json.Unmarshal(raw, &hasNext)
		}
		if !hasNext || len(items) == 0 {
			break
		}

		if err := f.clock.Sleep(ctx, f.pageDelay); err != nil {
			return nil, err
		}
	}

	f.logger.Printf("marketplace fetch complete endpoint=%s items=%d", endpoint, len(all))
	return all, nil
}

// GetJSON performs one authenticated GET and decodes the body into out.
// A 401 forces a token refresh and the request is retried once.
func (f *MarketplaceFetcher) GetJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	token, err := f.auth.ValidToken(ctx)
	if err != nil {
		return err
	}

	status, body, err := f.send(ctx, endpoint, params, token)
	if err != nil {
		return &NetworkError{Endpoint: endpoint, Err: err}
	}

	if status == http.StatusUnauthorized {
		f.logger.Printf("marketplace request unauthorized endpoint=%s, refreshing token", endpoint)
		token, err = f.auth.ForceRefresh(ctx)
		if err != nil {
			return err
		}
		status, body, err = f.send(ctx, endpoint, params, token)
		if err != nil {
			return &NetworkError{Endpoint: endpoint, Err: err}
		}
	}

	if status < 200 || status > 299 {
		return &NetworkError{Endpoint: endpoint, StatusCode: status, Body: truncateBody(body)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &NetworkError{Endpoint: endpoint, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (f *MarketplaceFetcher) send(ctx context.Context, endpoint string, params url.Values, token string) (int, []byte, error) {
	u := f.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("x-api-key", f.auth.APIKey())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.userAgent)

	group := endpointGroup(endpoint)
	start := time.Now()
	resp, err := f.httpClient.Do(req)
	MarketplaceRequestDuration.WithLabelValues(group).Observe(time.Since(start).Seconds())
	if err != nil {
		MarketplaceRequestsTotal.WithLabelValues(group, "error").Inc()
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		MarketplaceRequestsTotal.WithLabelValues(group, "error").Inc()
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	MarketplaceRequestsTotal.WithLabelValues(group, strconv.Itoa(resp.StatusCode)).Inc()

	return resp.StatusCode, body, nil
}

// endpointGroup keeps metric labels bounded: "/catalog/products/{id}/variants" becomes "catalog/products"
func endpointGroup(endpoint string) string {
	parts := strings.Split(strings.Trim(endpoint, "/"), "/")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, "/")
}
