package conservation

import (
	"context"
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/maintenance_backend/config"
	"bitbucket.org/mmdatafocus/maintenance_backend/models"
)

type fakeFetcher struct {
	records map[string]StockRecord
	err     error
	calls   int
	lastIds []string
}

func (f *fakeFetcher) FetchStocks(ctx context.Context, ids []string) (map[string]StockRecord, error) {
	f.calls++
	f.lastIds = ids
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func strPtr(v string) *string {
	return &v
}

func newTestService(fetcher *fakeFetcher, overrides map[int]NameOverride) *DisplayNameService {
	return &DisplayNameService{
		fetcher: fetcher,
		overrides: func(ctx context.Context, userId int, partIds []int) (map[int]NameOverride, error) {
			return overrides, nil
		},
		logger: config.GetLogger(),
	}
}

func TestResolvePartsLocalFallback(t *testing.T) {
	fetcher := &fakeFetcher{}
	service := newTestService(fetcher, nil)

	parts := []models.Part{{ID: 1, PartNo: "P-1", Name: "Local bearing"}}
	resolved, err := service.ResolveParts(context.Background(), 10, parts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetcher.calls != 0 {
		t.Fatal("no external ids, no remote call")
	}
	if resolved[0].DisplayName != "Local bearing" {
		t.Fatalf("expected local name, got %q", resolved[0].DisplayName)
	}
	if resolved[0].ApiName != nil {
		t.Fatal("no remote record, no api provenance")
	}
}

func TestResolvePartsRemoteWinsOverLocal(t *testing.T) {
	fetcher := &fakeFetcher{records: map[string]StockRecord{
		"901": {Id: "901", Name: "Remote bearing", SName: "RB"},
	}}
	service := newTestService(fetcher, nil)

	parts := []models.Part{{ID: 1, PartNo: "P-1", Name: "Local bearing", ExternalId: strPtr("901")}}
	resolved, err := service.ResolveParts(context.Background(), 10, parts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved[0].DisplayName != "Remote bearing (RB)" {
		t.Fatalf("unexpected display name %q", resolved[0].DisplayName)
	}
	if resolved[0].ApiName == nil || *resolved[0].ApiName != "Remote bearing" {
		t.Fatal("api provenance missing")
	}
}

func TestResolvePartsBlankRemoteStillShadowsLocal(t *testing.T) {
	fetcher := &fakeFetcher{records: map[string]StockRecord{
		"901": {Id: "901", Name: "", SName: ""},
	}}
	service := newTestService(fetcher, nil)

	parts := []models.Part{{ID: 1, PartNo: "P-1", Name: "Local bearing", ExternalId: strPtr("901")}}
	resolved, _ := service.ResolveParts(context.Background(), 10, parts)
	if resolved[0].DisplayName != "—" {
		t.Fatalf("blank remote record shadows the local name, got %q", resolved[0].DisplayName)
	}
}

func TestResolvePartsOverridePrecedence(t *testing.T) {
	fetcher := &fakeFetcher{records: map[string]StockRecord{
		"901": {Id: "901", Name: "Remote bearing", SName: "RB"},
	}}
	overrides := map[int]NameOverride{
		1: {DisplayName: strPtr("My bearing")},
		2: {DisplaySName: strPtr("SHORT")},
		3: {DisplayName: strPtr("   ")},
	}
	service := newTestService(fetcher, overrides)

	parts := []models.Part{
		{ID: 1, PartNo: "P-1", Name: "Local one", ExternalId: strPtr("901")},
		{ID: 2, PartNo: "P-2", Name: "Local two"},
		{ID: 3, PartNo: "P-3", Name: "Local three"},
	}
	resolved, err := service.ResolveParts(context.Background(), 10, parts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved[0].DisplayName != "My bearing (RB)" {
		t.Fatalf("override name with remote short name, got %q", resolved[0].DisplayName)
	}
	if resolved[1].DisplayName != "Local two (SHORT)" {
		t.Fatalf("short-name-only override keeps the base name, got %q", resolved[1].DisplayName)
	}
	if resolved[2].DisplayName != "Local three" {
		t.Fatalf("blank override must not win, got %q", resolved[2].DisplayName)
	}
}

func TestResolvePartsSingleBatchedCall(t *testing.T) {
	records := map[string]StockRecord{}
	parts := make([]models.Part, 0, 50)
	for i := 1; i <= 50; i++ {
		parts = append(parts, models.Part{ID: i, PartNo: "P", Name: "N", ExternalId: strPtr("900")})
	}
	records["900"] = StockRecord{Id: "900", Name: "Shared"}
	fetcher := &fakeFetcher{records: records}
	service := newTestService(fetcher, nil)

	resolved, err := service.ResolveParts(context.Background(), 10, parts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected one remote call for the whole slice, got %d", fetcher.calls)
	}
	if len(resolved) != len(parts) {
		t.Fatalf("cardinality must be preserved, got %d", len(resolved))
	}
	for i, row := range resolved {
		if row.ID != parts[i].ID {
			t.Fatalf("order must be preserved at %d", i)
		}
		if row.DisplayName != "Shared" {
			t.Fatalf("unexpected name %q", row.DisplayName)
		}
	}
}

func TestResolvePartsDegradesWhenRemoteFails(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	overrides := map[int]NameOverride{2: {DisplayName: strPtr("Named by me")}}
	service := newTestService(fetcher, overrides)

	parts := []models.Part{
		{ID: 1, PartNo: "P-1", Name: "Local one", ExternalId: strPtr("901")},
		{ID: 2, PartNo: "P-2", Name: "Local two", ExternalId: strPtr("902")},
	}
	resolved, err := service.ResolveParts(context.Background(), 10, parts)
	if err != nil {
		t.Fatalf("remote failure must not fail resolution: %v", err)
	}
	if resolved[0].DisplayName != "Local one" {
		t.Fatalf("expected local fallback, got %q", resolved[0].DisplayName)
	}
	if resolved[1].DisplayName != "Named by me" {
		t.Fatalf("override still applies without the remote side, got %q", resolved[1].DisplayName)
	}
}

func TestBuildDisplayString(t *testing.T) {
	cases := []struct {
		name  string
		sName string
		want  string
	}{
		{"Bearing", "BRG", "Bearing (BRG)"},
		{"Bearing", "", "Bearing"},
		{"", "BRG", "BRG"},
		{"", "", "—"},
		{"  Bearing  ", " BRG ", "Bearing (BRG)"},
	}
	for _, tc := range cases {
		if got := buildDisplayString(tc.name, tc.sName); got != tc.want {
			t.Fatalf("buildDisplayString(%q, %q) = %q, want %q", tc.name, tc.sName, got, tc.want)
		}
	}
}
