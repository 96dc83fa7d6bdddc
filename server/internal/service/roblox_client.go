package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

/* ErrUpstreamRateLimited 上游返回 429 */
var ErrUpstreamRateLimited = errors.New("upstream rate limited")

/*
HTTPError 上游返回非 2xx 状态码
*/
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.StatusCode, string(e.Body))
}

/* AssetKind 上游对物品是否限量的判定 */
type AssetKind int

const (
	AssetNotLimited AssetKind = iota
	AssetLimited
)

/*
AssetDetails 上游物品详情
Kind 为 AssetLimited 时 Available/Total 才有意义
*/
type AssetDetails struct {
	Kind      AssetKind
	Available int
	Total     int
}

/*
StockFetcher 单个物品的库存查询
*/
type StockFetcher interface {
	FetchAssetDetails(ctx context.Context, assetID string) (*AssetDetails, error)
}

/* userAgentRoundTripper 为每个请求附加 User-Agent */
type userAgentRoundTripper struct {
	wrapped   http.RoundTripper
	userAgent string
}

func (rt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", rt.userAgent)
	return rt.wrapped.RoundTrip(clone)
}

/*
RobloxCatalogClient Roblox 经济 API 客户端
功能：GET {base}/v2/assets/{id}/details，解析限量物品的剩余/总量
*/
type RobloxCatalogClient struct {
	baseURL string
	client  *http.Client
}

/*
NewRobloxCatalogClient 创建客户端
base 为 nil 时使用新的 http.Client；超时由调用方的 context 控制
*/
func NewRobloxCatalogClient(baseURL, userAgent string, base *http.Client) *RobloxCatalogClient {
	if base == nil {
		base = &http.Client{}
	}
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if userAgent != "" {
		transport = &userAgentRoundTripper{wrapped: transport, userAgent: userAgent}
	}
	return &RobloxCatalogClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Transport: transport,
			Timeout:   base.Timeout,
		},
	}
}

/* assetDetailsResponse 上游 JSON，字段按需取用 */
type assetDetailsResponse struct {
	IsLimited               bool    `json:"IsLimited"`
	IsLimitedUnique         bool    `json:"IsLimitedUnique"`
	Remaining               *int    `json:"Remaining"`
	CollectibleItemID       *string `json:"CollectibleItemId"`
	CollectiblesItemDetails *struct {
		TotalQuantity *int `json:"TotalQuantity"`
	} `json:"CollectiblesItemDetails"`
}

func (r *assetDetailsResponse) toDetails() *AssetDetails {
	limited := r.IsLimited || r.IsLimitedUnique || r.CollectibleItemID != nil
	if !limited || r.Remaining == nil {
		return &AssetDetails{Kind: AssetNotLimited}
	}

	details := &AssetDetails{Kind: AssetLimited, Available: *r.Remaining}
	if r.CollectiblesItemDetails != nil && r.CollectiblesItemDetails.TotalQuantity != nil {
		details.Total = *r.CollectiblesItemDetails.TotalQuantity
	}
	return details
}

/*
FetchAssetDetails 查询单个物品
429 返回 ErrUpstreamRateLimited，其他非 2xx 返回 *HTTPError
*/
func (c *RobloxCatalogClient) FetchAssetDetails(ctx context.Context, assetID string) (*AssetDetails, error) {
	endpoint := fmt.Sprintf("%s/v2/assets/%s/details", c.baseURL, url.PathEscape(assetID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("request timed out: %w", err)
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, ErrUpstreamRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: body}
	}

	var payload assetDetailsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode asset details: %w", err)
	}
	return payload.toDetails(), nil
}

/* defaultSleep 可被 context 取消的等待 */
func defaultSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
