package conservation

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"

	"bitbucket.org/mmdatafocus/maintenance_backend/config"
	"github.com/shopspring/decimal"
)

type fakeLocator struct {
	mu sync.Mutex

	stocks      map[string]*StockRecord
	fetchErr    map[string]error
	fetchCalls  int
	submitErr   error
	submitted   []AdjustmentEntry
	submitDir   Direction
	submitCalls int
	result      *BatchAdjustmentResult
}

func (f *fakeLocator) FetchStock(ctx context.Context, id string) (*StockRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if err, ok := f.fetchErr[id]; ok {
		return nil, err
	}
	record, ok := f.stocks[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return record, nil
}

func (f *fakeLocator) SubmitBatchAdjustment(ctx context.Context, direction Direction, entries []AdjustmentEntry) (*BatchAdjustmentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	f.submitDir = direction
	f.submitted = entries
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	if f.result != nil {
		return f.result, nil
	}
	return &BatchAdjustmentResult{Status: BatchStatusSucceeded}, nil
}

func newTestReconciler(locator *fakeLocator) *Reconciler {
	return &Reconciler{locator: locator, logger: config.GetLogger()}
}

func qty(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func stockWithSlot(id string, slotId int) *StockRecord {
	return &StockRecord{Id: json.Number(id), StockStorages: []StorageSlot{{Id: slotId}}}
}

func TestReconcileEmptyInput(t *testing.T) {
	locator := &fakeLocator{}
	outcome := newTestReconciler(locator).Reconcile(context.Background(), DirectionConsume, nil)
	if outcome.Status != OutcomeAllSucceeded {
		t.Fatalf("expected all_succeeded, got %s", outcome.Status)
	}
	if locator.fetchCalls != 0 || locator.submitCalls != 0 {
		t.Fatal("empty input must not touch the remote side")
	}
}

func TestReconcileFiltersInvalidItems(t *testing.T) {
	locator := &fakeLocator{stocks: map[string]*StockRecord{"5": stockWithSlot("5", 50)}}
	items := []AdjustmentItem{
		{PartId: 1, ExternalId: "", Quantity: qty(3)},
		{PartId: 2, ExternalId: "5", Quantity: qty(0)},
		{PartId: 3, ExternalId: "5", Quantity: qty(-1)},
	}
	outcome := newTestReconciler(locator).Reconcile(context.Background(), DirectionConsume, items)
	if outcome.Status != OutcomeAllSucceeded {
		t.Fatalf("expected all_succeeded, got %s", outcome.Status)
	}
	if len(outcome.Details) != 0 {
		t.Fatalf("invalid items are dropped, got %d details", len(outcome.Details))
	}
	if locator.submitCalls != 0 {
		t.Fatal("nothing valid to submit")
	}
}

func TestReconcileDropsUnlocatableItems(t *testing.T) {
	locator := &fakeLocator{
		stocks:   map[string]*StockRecord{"5": stockWithSlot("5", 50)},
		fetchErr: map[string]error{"6": errors.New("timeout")},
	}
	// id 7 exists but has no storage slots.
	locator.stocks["7"] = &StockRecord{Id: "7"}

	items := []AdjustmentItem{
		{PartId: 1, ExternalId: "5", Quantity: qty(2)},
		{PartId: 2, ExternalId: "6", Quantity: qty(1)},
		{PartId: 3, ExternalId: "7", Quantity: qty(4)},
	}
	outcome := newTestReconciler(locator).Reconcile(context.Background(), DirectionConsume, items)
	if outcome.Status != OutcomeAllSucceeded {
		t.Fatalf("expected all_succeeded, got %s", outcome.Status)
	}
	if len(outcome.Details) != 1 {
		t.Fatalf("unlocatable items must not appear in details, got %d", len(outcome.Details))
	}
	if outcome.Details[0].PartId != 1 || !outcome.Details[0].Success {
		t.Fatalf("located item should succeed: %+v", outcome.Details[0])
	}
	if len(locator.submitted) != 1 || locator.submitted[0].StockStorageId != 50 {
		t.Fatalf("unexpected batch %+v", locator.submitted)
	}
}

func TestReconcileAllDroppedSubmitsNothing(t *testing.T) {
	locator := &fakeLocator{fetchErr: map[string]error{"6": errors.New("down")}}
	items := []AdjustmentItem{{PartId: 1, ExternalId: "6", Quantity: qty(1)}}
	outcome := newTestReconciler(locator).Reconcile(context.Background(), DirectionConsume, items)
	if outcome.Status != OutcomeAllSucceeded {
		t.Fatalf("expected all_succeeded, got %s", outcome.Status)
	}
	if len(outcome.Details) != 0 {
		t.Fatalf("expected empty details, got %d", len(outcome.Details))
	}
	if locator.submitCalls != 0 {
		t.Fatal("no located entries, no batch call")
	}
}

func TestReconcileLocatesSlotWithIdZero(t *testing.T) {
	locator := &fakeLocator{stocks: map[string]*StockRecord{"5": stockWithSlot("5", 0)}}
	items := []AdjustmentItem{{PartId: 1, ExternalId: "5", Quantity: qty(2)}}
	outcome := newTestReconciler(locator).Reconcile(context.Background(), DirectionConsume, items)
	if outcome.Status != OutcomeAllSucceeded {
		t.Fatalf("expected all_succeeded, got %s", outcome.Status)
	}
	if len(locator.submitted) != 1 || locator.submitted[0].StockStorageId != 0 {
		t.Fatalf("a slot id of 0 is still a located slot: %+v", locator.submitted)
	}
	if len(outcome.Details) != 1 || !outcome.Details[0].Success {
		t.Fatalf("unexpected details %+v", outcome.Details)
	}
}

func TestReconcilePartialOutcome(t *testing.T) {
	ok := true
	failed := false
	locator := &fakeLocator{
		stocks: map[string]*StockRecord{
			"5": stockWithSlot("5", 50),
			"6": stockWithSlot("6", 60),
		},
		result: &BatchAdjustmentResult{
			Status: BatchStatusPartial,
			Results: []EntryResult{
				{StockStorageId: 50, Success: &ok},
				{StockStorageId: 60, Success: &failed, Message: "insufficient stock"},
			},
		},
	}
	items := []AdjustmentItem{
		{PartId: 1, ExternalId: "5", Quantity: qty(2)},
		{PartId: 2, ExternalId: "6", Quantity: qty(9)},
	}
	outcome := newTestReconciler(locator).Reconcile(context.Background(), DirectionConsume, items)
	if outcome.Status != OutcomePartial {
		t.Fatalf("expected partial, got %s", outcome.Status)
	}
	if outcome.Message == "" {
		t.Fatal("a failing entry must surface an advisory message")
	}
	if !outcome.Details[0].Success || outcome.Details[1].Success {
		t.Fatalf("per-entry outcomes misaligned: %+v", outcome.Details)
	}
	if outcome.Details[1].Message != "insufficient stock" {
		t.Fatalf("unexpected message %q", outcome.Details[1].Message)
	}
}

func TestReconcilePartialMissingSuccessCountsAsFailure(t *testing.T) {
	locator := &fakeLocator{
		stocks: map[string]*StockRecord{"5": stockWithSlot("5", 50)},
		result: &BatchAdjustmentResult{
			Status:  BatchStatusPartial,
			Results: []EntryResult{{StockStorageId: 50}},
		},
	}
	items := []AdjustmentItem{{PartId: 1, ExternalId: "5", Quantity: qty(2)}}
	outcome := newTestReconciler(locator).Reconcile(context.Background(), DirectionConsume, items)
	if outcome.Status != OutcomePartial {
		t.Fatalf("expected partial, got %s", outcome.Status)
	}
	if outcome.Details[0].Success {
		t.Fatal("an entry without an explicit success must count as failed")
	}
	if outcome.Message == "" {
		t.Fatal("the advisory message must surface")
	}
}

func TestReconcilePartialWithoutFailuresHasNoMessage(t *testing.T) {
	ok := true
	locator := &fakeLocator{
		stocks: map[string]*StockRecord{"5": stockWithSlot("5", 50)},
		result: &BatchAdjustmentResult{
			Status:  BatchStatusPartial,
			Results: []EntryResult{{StockStorageId: 50, Success: &ok}},
		},
	}
	items := []AdjustmentItem{{PartId: 1, ExternalId: "5", Quantity: qty(2)}}
	outcome := newTestReconciler(locator).Reconcile(context.Background(), DirectionConsume, items)
	if outcome.Status != OutcomePartial {
		t.Fatalf("expected partial, got %s", outcome.Status)
	}
	if outcome.Message != "" {
		t.Fatalf("no failures, no message, got %q", outcome.Message)
	}
}

func TestReconcileRejectedBatch(t *testing.T) {
	locator := &fakeLocator{
		stocks: map[string]*StockRecord{"5": stockWithSlot("5", 50)},
		result: &BatchAdjustmentResult{Status: BatchStatusFailed},
	}
	items := []AdjustmentItem{{PartId: 1, ExternalId: "5", Quantity: qty(2)}}
	outcome := newTestReconciler(locator).Reconcile(context.Background(), DirectionReturn, items)
	if outcome.Status != OutcomeAllFailed {
		t.Fatalf("expected all_failed, got %s", outcome.Status)
	}
	if locator.submitDir != DirectionReturn {
		t.Fatalf("direction must pass through, got %s", locator.submitDir)
	}
}

func TestReconcileCommunicationError(t *testing.T) {
	locator := &fakeLocator{
		stocks:    map[string]*StockRecord{"5": stockWithSlot("5", 50)},
		submitErr: errors.New("connection reset"),
	}
	items := []AdjustmentItem{{PartId: 1, ExternalId: "5", Quantity: qty(2)}}
	outcome := newTestReconciler(locator).Reconcile(context.Background(), DirectionConsume, items)
	if outcome.Status != OutcomeCommunicationError {
		t.Fatalf("expected communication_error, got %s", outcome.Status)
	}
	if outcome.Message == "" {
		t.Fatal("communication errors must carry a message")
	}
}

func TestReconcilePreservesInputOrder(t *testing.T) {
	locator := &fakeLocator{stocks: map[string]*StockRecord{}}
	items := make([]AdjustmentItem, 0, 20)
	for i := 1; i <= 20; i++ {
		id := strconv.Itoa(i)
		locator.stocks[id] = &StockRecord{Id: json.Number(id), StockStorages: []StorageSlot{{Id: 1000 + i}}}
		items = append(items, AdjustmentItem{PartId: i, ExternalId: id, Quantity: qty(1)})
	}

	outcome := newTestReconciler(locator).Reconcile(context.Background(), DirectionConsume, items)
	if outcome.Status != OutcomeAllSucceeded {
		t.Fatalf("expected all_succeeded, got %s", outcome.Status)
	}
	for i, entry := range locator.submitted {
		if entry.StockStorageId != 1000+i+1 {
			t.Fatalf("batch order must match input order at %d: %+v", i, entry)
		}
	}
	for i, detail := range outcome.Details {
		if detail.PartId != i+1 {
			t.Fatalf("detail order must match input order at %d: %+v", i, detail)
		}
	}
}
