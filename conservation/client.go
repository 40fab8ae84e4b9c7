package conservation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/maintenance_backend/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	readTimeout  = 10 * time.Second
	writeTimeout = 15 * time.Second

	// The list endpoint caps page size at 100; batched lookups must
	// chunk accordingly.
	listPageSize = 100
)

var tracer = otel.Tracer("conservation")

// Client talks to the Conservation stock API. All methods honor the
// passed context and apply their own per-call timeout on top of it.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
}

func NewClientFromEnv() *Client {
	return NewClient(config.GetConservationBaseURL())
}

// BaseURL exposes the configured endpoint root, used when building
// absolute asset URLs from relative image paths.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body interface{}, timeout time.Duration) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "conservation."+method+" "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", path),
	)

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return 0, nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return resp.StatusCode, nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp.StatusCode, raw, nil
}

type stockListResponse struct {
	Data []StockRecord `json:"data"`
}

// FetchStocks resolves external ids in one batched list call per 100
// ids. Duplicate ids collapse to a single lookup. The result map only
// holds ids the API actually returned; absent ids are simply missing.
func (c *Client) FetchStocks(ctx context.Context, ids []string) (map[string]StockRecord, error) {
	unique := make([]string, 0, len(ids))
	seen := map[string]bool{}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return map[string]StockRecord{}, nil
	}

	records := make(map[string]StockRecord, len(unique))
	for start := 0; start < len(unique); start += listPageSize {
		end := start + listPageSize
		if end > len(unique) {
			end = len(unique)
		}
		chunk := unique[start:end]

		params := url.Values{}
		params.Set("ids", strings.Join(chunk, ","))
		params.Set("per_page", fmt.Sprintf("%d", listPageSize))

		status, raw, err := c.do(ctx, http.MethodGet, "/stocks", params, nil, readTimeout)
		if err != nil {
			return nil, err
		}
		if status < 200 || status >= 300 {
			return nil, fmt.Errorf("conservation api error %d: %s", status, strings.TrimSpace(string(raw)))
		}

		var parsed stockListResponse
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return nil, err
		}
		for _, record := range parsed.Data {
			records[record.Id.String()] = record
		}
	}
	return records, nil
}

// FetchStock loads one stock by its external id.
func (c *Client) FetchStock(ctx context.Context, id string) (*StockRecord, error) {
	status, raw, err := c.do(ctx, http.MethodGet, "/stocks/"+url.PathEscape(id), nil, nil, readTimeout)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("conservation api error %d: %s", status, strings.TrimSpace(string(raw)))
	}

	var record StockRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// SearchStocks forwards arbitrary search parameters (keyword, page,
// per_page and friends) to the stock list endpoint.
func (c *Client) SearchStocks(ctx context.Context, params url.Values) ([]StockRecord, error) {
	status, raw, err := c.do(ctx, http.MethodGet, "/stocks", params, nil, readTimeout)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("conservation api error %d: %s", status, strings.TrimSpace(string(raw)))
	}

	var parsed stockListResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}
	return parsed.Data, nil
}

type userListResponse struct {
	Data []RemoteUser `json:"data"`
}

// SearchUsers forwards search parameters to the user directory endpoint.
func (c *Client) SearchUsers(ctx context.Context, params url.Values) ([]RemoteUser, error) {
	status, raw, err := c.do(ctx, http.MethodGet, "/users", params, nil, readTimeout)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("conservation api error %d: %s", status, strings.TrimSpace(string(raw)))
	}

	var parsed userListResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}
	return parsed.Data, nil
}

// adjustmentEntryWire is the outbound shape of one batch entry. The
// endpoint wants quantity as a bare number, which decimal's default
// marshalling would quote.
type adjustmentEntryWire struct {
	StockStorageId int         `json:"stock_storage_id"`
	Quantity       json.Number `json:"quantity"`
}

type batchAdjustmentResponse struct {
	Results []EntryResult `json:"results"`
}

// SubmitBatchAdjustment posts one batch of quantity changes. A non-nil
// error means the exchange itself broke (transport, timeout, unparsable
// body); an answered rejection comes back as BatchStatusFailed instead.
func (c *Client) SubmitBatchAdjustment(ctx context.Context, direction Direction, entries []AdjustmentEntry) (*BatchAdjustmentResult, error) {
	path := "/stock-storages/subtract"
	if direction == DirectionReturn {
		path = "/stock-storages/add"
	}

	wire := make([]adjustmentEntryWire, len(entries))
	for i, entry := range entries {
		wire[i] = adjustmentEntryWire{
			StockStorageId: entry.StockStorageId,
			Quantity:       json.Number(entry.Quantity.String()),
		}
	}
	status, raw, err := c.do(ctx, http.MethodPost, path, nil, wire, writeTimeout)
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusMultiStatus:
		var parsed batchAdjustmentResponse
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return nil, err
		}
		return &BatchAdjustmentResult{Status: BatchStatusPartial, Results: parsed.Results}, nil
	case status >= 200 && status < 300:
		result := &BatchAdjustmentResult{Status: BatchStatusSucceeded}
		var parsed batchAdjustmentResponse
		if err := json.Unmarshal(raw, &parsed); err == nil {
			result.Results = parsed.Results
		}
		return result, nil
	default:
		return &BatchAdjustmentResult{Status: BatchStatusFailed}, nil
	}
}

// Raw performs one arbitrary call against the API and hands back the
// status and body untouched. The test console goes through here.
func (c *Client) Raw(ctx context.Context, method, path string, params url.Values, body []byte) (int, []byte, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	var payload interface{}
	if len(body) > 0 {
		payload = json.RawMessage(body)
	}
	return c.do(ctx, method, path, params, payload, writeTimeout)
}
