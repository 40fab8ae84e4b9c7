package main

import (
	"encoding/json"
	"testing"

	"bitbucket.org/mmdatafocus/maintenance_backend/conservation"
	"github.com/shopspring/decimal"
)

func TestResolveAssetURL(t *testing.T) {
	t.Setenv("CONSERVATION_API_BASE_URL", "https://stocks.example.com/api")

	cases := []struct {
		path string
		want string
	}{
		{"", ""},
		{"storage/img/1.jpg", "https://stocks.example.com/storage/img/1.jpg"},
		{"/storage/img/1.jpg", "https://stocks.example.com/storage/img/1.jpg"},
		{"https://cdn.example.com/1.jpg", "https://cdn.example.com/1.jpg"},
	}
	for _, tc := range cases {
		if got := resolveAssetURL(tc.path); got != tc.want {
			t.Fatalf("resolveAssetURL(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestNormalizeStockPicksMainSupplier(t *testing.T) {
	record := conservation.StockRecord{
		Id:   json.Number("42"),
		Name: "Bearing",
		StockSuppliers: []conservation.StockSupplier{
			{MainFlg: 0, Supplier: &conservation.SupplierRef{Name: "Backup Co"}},
			{MainFlg: 1, Supplier: &conservation.SupplierRef{Name: "Main Co"}},
		},
	}

	view := normalizeStock(record, nil)
	if view.SupplierName != "Main Co" {
		t.Fatalf("expected main supplier, got %q", view.SupplierName)
	}

	record.StockSuppliers[1].MainFlg = 0
	view = normalizeStock(record, nil)
	if view.SupplierName != "Backup Co" {
		t.Fatalf("without a main flag the first supplier wins, got %q", view.SupplierName)
	}
}

func TestNormalizeStockThumbnailFallback(t *testing.T) {
	t.Setenv("CONSERVATION_API_BASE_URL", "https://stocks.example.com/api")

	record := conservation.StockRecord{
		Id:      json.Number("42"),
		ImgPath: "storage/fallback.jpg",
	}
	view := normalizeStock(record, nil)
	if view.ThumbnailUrl != "https://stocks.example.com/storage/fallback.jpg" {
		t.Fatalf("expected img_path fallback, got %q", view.ThumbnailUrl)
	}

	record.StockImages = []conservation.StockImage{{FilePath: "storage/first.jpg"}}
	view = normalizeStock(record, nil)
	if view.ThumbnailUrl != "https://stocks.example.com/storage/first.jpg" {
		t.Fatalf("expected first image, got %q", view.ThumbnailUrl)
	}
}

func TestNormalizeStockTotalsAndRegistration(t *testing.T) {
	five := decimal.NewFromInt(5)
	three := decimal.NewFromInt(3)
	record := conservation.StockRecord{
		Id: json.Number("42"),
		StockStorages: []conservation.StorageSlot{
			{Id: 1, Quantity: &five},
			{Id: 2, Quantity: &three},
			{Id: 3},
		},
	}

	view := normalizeStock(record, map[string]bool{"42": true})
	if !view.TotalQuantity.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("expected total 8, got %s", view.TotalQuantity)
	}
	if !view.AlreadyRegistered {
		t.Fatal("expected already_registered")
	}

	view = normalizeStock(record, map[string]bool{"99": true})
	if view.AlreadyRegistered {
		t.Fatal("unexpected already_registered")
	}
}
