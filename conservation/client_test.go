package conservation

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestFetchStocksBatchesAndDeduplicates(t *testing.T) {
	var calls int
	var gotIds string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/stocks" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		gotIds = r.URL.Query().Get("ids")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"id":101,"name":"Bearing","s_name":"BRG"},{"id":"102","name":"Belt"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	records, err := client.FetchStocks(context.Background(), []string{"101", "102", "101", " ", "102"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one batched call, got %d", calls)
	}
	if gotIds != "101,102" {
		t.Fatalf("expected deduplicated ids, got %q", gotIds)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records["101"].Name != "Bearing" || records["101"].SName != "BRG" {
		t.Fatalf("unexpected record: %+v", records["101"])
	}
	if records["102"].Name != "Belt" {
		t.Fatalf("string ids must key the same map, got %+v", records["102"])
	}
}

func TestFetchStocksEmptyInputSkipsCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no call expected")
	}))
	defer server.Close()

	client := NewClient(server.URL)
	records, err := client.FetchStocks(context.Background(), []string{"", "  "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty map, got %v", records)
	}
}

func TestFetchStockErrorPaths(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"message":"boom"}`},
		{"not found", http.StatusNotFound, `{"message":"missing"}`},
		{"malformed body", http.StatusOK, `{"id":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewClient(server.URL)
			if _, err := client.FetchStock(context.Background(), "7"); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestSubmitBatchAdjustmentRoutesByDirection(t *testing.T) {
	var gotPath, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		buf, _ := io.ReadAll(r.Body)
		gotBody = string(buf)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"results":[]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	entries := []AdjustmentEntry{{StockStorageId: 55, Quantity: decimal.NewFromInt(3)}}

	result, err := client.SubmitBatchAdjustment(context.Background(), DirectionConsume, entries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/stock-storages/subtract" {
		t.Fatalf("consume must subtract, got %s", gotPath)
	}
	if result.Status != BatchStatusSucceeded {
		t.Fatalf("expected succeeded, got %s", result.Status)
	}
	var payload []map[string]interface{}
	if err := json.Unmarshal([]byte(gotBody), &payload); err != nil {
		t.Fatalf("body must be a bare JSON array, got %s", gotBody)
	}
	if len(payload) != 1 || payload[0]["stock_storage_id"] != float64(55) {
		t.Fatalf("unexpected body: %s", gotBody)
	}
	if quantity, ok := payload[0]["quantity"].(float64); !ok || quantity != 3 {
		t.Fatalf("quantity must be a JSON number, got %s", gotBody)
	}

	if _, err := client.SubmitBatchAdjustment(context.Background(), DirectionReturn, entries); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/stock-storages/add" {
		t.Fatalf("return must add, got %s", gotPath)
	}
}

func TestSubmitBatchAdjustmentMultiStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMultiStatus)
		w.Write([]byte(`{"results":[{"stock_storage_id":1,"success":true},{"stock_storage_id":2,"success":false,"message":"insufficient stock"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	result, err := client.SubmitBatchAdjustment(context.Background(), DirectionConsume, []AdjustmentEntry{
		{StockStorageId: 1, Quantity: decimal.NewFromInt(1)},
		{StockStorageId: 2, Quantity: decimal.NewFromInt(9)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != BatchStatusPartial {
		t.Fatalf("expected partial, got %s", result.Status)
	}
	if len(result.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(result.Results))
	}
	if result.Results[1].Success == nil || *result.Results[1].Success {
		t.Fatal("second entry should have failed")
	}
	if result.Results[1].Message != "insufficient stock" {
		t.Fatalf("unexpected message %q", result.Results[1].Message)
	}
}

func TestSubmitBatchAdjustmentRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"invalid"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	result, err := client.SubmitBatchAdjustment(context.Background(), DirectionConsume, []AdjustmentEntry{
		{StockStorageId: 1, Quantity: decimal.NewFromInt(1)},
	})
	if err != nil {
		t.Fatalf("rejection is not a transport error: %v", err)
	}
	if result.Status != BatchStatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
}

func TestSubmitBatchAdjustmentTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(server.URL)
	if _, err := client.SubmitBatchAdjustment(context.Background(), DirectionConsume, nil); err == nil {
		t.Fatal("expected a transport error")
	}
}

func TestRawPassesThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stocks/9" || r.URL.Query().Get("with") != "storages" {
			t.Fatalf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte(`{"message":"short and stout"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	params := url.Values{}
	params.Set("with", "storages")
	status, body, err := client.Raw(context.Background(), http.MethodGet, "stocks/9", params, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != http.StatusTeapot {
		t.Fatalf("expected passthrough status, got %d", status)
	}
	if !strings.Contains(string(body), "short and stout") {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestSearchUsersParsesDirectory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users" || r.URL.Query().Get("keyword") != "sato" {
			t.Fatalf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		w.Write([]byte(`{"data":[{"id":7,"name":"Sato","email":"sato@example.com"},{"id":"8","name":"Satoh"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	params := url.Values{}
	params.Set("keyword", "sato")
	users, err := client.SearchUsers(context.Background(), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	if users[0].Id.String() != "7" || users[0].Email != "sato@example.com" {
		t.Fatalf("unexpected first user %+v", users[0])
	}
	if users[1].Id.String() != "8" {
		t.Fatalf("numeric and string ids should both parse, got %+v", users[1])
	}
}
