package conservation

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/maintenance_backend/config"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// locateConcurrency caps parallel storage lookups per batch.
const locateConcurrency = 5

// stockLocator is the slice of the API client the reconciler needs.
type stockLocator interface {
	FetchStock(ctx context.Context, id string) (*StockRecord, error)
	SubmitBatchAdjustment(ctx context.Context, direction Direction, entries []AdjustmentEntry) (*BatchAdjustmentResult, error)
}

// AdjustmentItem is one part usage to mirror into remote inventory.
type AdjustmentItem struct {
	PartId     int
	ExternalId string
	Quantity   decimal.Decimal
}

type OutcomeStatus string

const (
	OutcomeAllSucceeded       OutcomeStatus = "all_succeeded"
	OutcomePartial            OutcomeStatus = "partial"
	OutcomeAllFailed          OutcomeStatus = "all_failed"
	OutcomeCommunicationError OutcomeStatus = "communication_error"
)

// AdjustmentDetail reports what happened to one submitted item.
type AdjustmentDetail struct {
	PartId         int             `json:"part_id"`
	ExternalId     string          `json:"external_id"`
	StockStorageId int             `json:"stock_storage_id"`
	Quantity       decimal.Decimal `json:"quantity"`
	Success        bool            `json:"success"`
	Message        string          `json:"message,omitempty"`
}

// Outcome summarizes one reconciliation pass. Message is empty when
// everything went through.
type Outcome struct {
	Status  OutcomeStatus      `json:"status"`
	Message string             `json:"message,omitempty"`
	Details []AdjustmentDetail `json:"details"`
}

// Reconciler mirrors part consumption into the remote inventory. It is
// best effort: any failure is reported in the Outcome, never as an
// error, so saving the local record is never blocked by the remote side.
type Reconciler struct {
	locator stockLocator
	logger  *logrus.Logger
}

func NewReconciler(locator stockLocator) *Reconciler {
	return &Reconciler{locator: locator, logger: config.GetLogger()}
}

// Reconcile locates the storage slot of every item and submits one
// batch adjustment. Items without an external id or with a non-positive
// quantity are dropped up front; items whose stock cannot be located
// are dropped too and simply do not appear in the outcome details.
func (r *Reconciler) Reconcile(ctx context.Context, direction Direction, items []AdjustmentItem) Outcome {
	valid := make([]AdjustmentItem, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.ExternalId) == "" || !item.Quantity.IsPositive() {
			continue
		}
		valid = append(valid, item)
	}
	if len(valid) == 0 {
		return Outcome{Status: OutcomeAllSucceeded, Details: []AdjustmentDetail{}}
	}

	// Slot ids land at the index of their item so input order survives
	// the fan-out. The flag, not the id value, marks a successful
	// locate, so a slot whose real id happens to be 0 still counts.
	slotIds := make([]int, len(valid))
	located := make([]bool, len(valid))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(locateConcurrency)
	for i, item := range valid {
		i, item := i, item
		group.Go(func() error {
			record, err := r.locator.FetchStock(groupCtx, strings.TrimSpace(item.ExternalId))
			if err != nil {
				config.LogError(r.logger, "conservation", "Reconcile", "locate storage", item.ExternalId, err)
				return nil
			}
			if len(record.StockStorages) == 0 {
				return nil
			}
			slotIds[i] = record.StockStorages[0].Id
			located[i] = true
			return nil
		})
	}
	// Workers never return errors, Wait only fences the writes.
	_ = group.Wait()

	details := make([]AdjustmentDetail, 0, len(valid))
	entries := make([]AdjustmentEntry, 0, len(valid))
	for i, item := range valid {
		if !located[i] {
			continue
		}
		details = append(details, AdjustmentDetail{
			PartId:         item.PartId,
			ExternalId:     strings.TrimSpace(item.ExternalId),
			StockStorageId: slotIds[i],
			Quantity:       item.Quantity,
		})
		entries = append(entries, AdjustmentEntry{StockStorageId: slotIds[i], Quantity: item.Quantity})
	}

	if len(entries) == 0 {
		return Outcome{Status: OutcomeAllSucceeded, Details: []AdjustmentDetail{}}
	}

	result, err := r.locator.SubmitBatchAdjustment(ctx, direction, entries)
	if err != nil {
		config.LogError(r.logger, "conservation", "Reconcile", "submit batch", direction, err)
		return Outcome{
			Status:  OutcomeCommunicationError,
			Message: "Could not reach the inventory service. Stock quantities were not adjusted.",
			Details: details,
		}
	}

	switch result.Status {
	case BatchStatusFailed:
		for i := range details {
			details[i].Message = "adjustment rejected"
		}
		return Outcome{
			Status:  OutcomeAllFailed,
			Message: "The inventory service rejected the stock adjustment.",
			Details: details,
		}
	case BatchStatusPartial:
		anyFailed := false
		for i := range details {
			if i < len(result.Results) {
				entry := result.Results[i]
				// An entry without an explicit success counts as failed.
				details[i].Success = entry.Success != nil && *entry.Success
				details[i].Message = entry.Message
			} else {
				// Response shorter than the batch, nothing reliable to
				// report per entry.
				details[i].Message = "no result reported"
			}
			if !details[i].Success {
				anyFailed = true
			}
		}
		outcome := Outcome{Status: OutcomePartial, Details: details}
		if anyFailed {
			if direction == DirectionConsume {
				outcome.Message = "Some stock deductions were not applied. Stock may be insufficient."
			} else {
				outcome.Message = "Some stock returns were not applied."
			}
		}
		return outcome
	default:
		for i := range details {
			details[i].Success = true
		}
		return Outcome{Status: OutcomeAllSucceeded, Details: details}
	}
}
