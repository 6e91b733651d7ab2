/*
Copyright 2025 Chronoworks Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ledgersync

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/chronoworks/ledgersync/database"
	"github.com/chronoworks/ledgersync/internal/apierror"
	"github.com/chronoworks/ledgersync/model"
)

// quarantineEntityType is the only entity type the pipeline syncs today.
const quarantineEntityType = "billing_record"

// CaptureQuarantine records a failed entity for operator review. Repeat
// failures of an already-quarantined entity fold into the open record.
func (l *Ledgersync) CaptureQuarantine(ctx context.Context, job *model.SyncJob, classification Classification, syncErr error) (*model.QuarantineRecord, error) {
	record := &model.QuarantineRecord{
		QuarantineID: database.GenerateUUIDWithSuffix("quarantine"),
		EntityType:   quarantineEntityType,
		EntityID:     job.EntityID,
		Priority:     classification.Priority,
		Reason:       fmt.Sprintf("%s failure after %d attempt(s)", classification.Category, job.Attempts),
		ErrorDetail:  syncErr.Error(),
	}
	stored, err := l.datasource.UpsertQuarantineRecord(ctx, record)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"quarantine":  stored.QuarantineID,
		"entity":      stored.EntityID,
		"priority":    stored.Priority,
		"occurrences": stored.Occurrences,
	}).Warn("entity quarantined")
	l.publishEvent(ctx, EventQuarantineCreated, map[string]interface{}{
		"quarantine_id": stored.QuarantineID,
		"entity_id":     stored.EntityID,
		"priority":      string(stored.Priority),
		"reason":        stored.Reason,
		"occurrences":   stored.Occurrences,
	})
	return stored, nil
}

// ListQuarantine returns a filtered page of the operator worklist.
func (l *Ledgersync) ListQuarantine(ctx context.Context, filters model.QuarantineFilters, page, pageSize int) ([]*model.QuarantineRecord, error) {
	return l.datasource.ListQuarantineRecords(ctx, filters, page, pageSize)
}

// GetQuarantine retrieves one quarantine record by ID.
func (l *Ledgersync) GetQuarantine(ctx context.Context, quarantineID string) (*model.QuarantineRecord, error) {
	return l.datasource.GetQuarantineRecord(ctx, quarantineID)
}

// ReviewQuarantine applies an operator's verdict to a quarantined entity.
//
// Resolving merges the supplied corrections into the billing record,
// re-validates it, persists it and re-enqueues a sync job at high priority.
// A correction that still fails validation leaves the record in review with
// the attempted corrections stored, so the next reviewer starts from them.
// Rejecting closes the record without touching the entity. Both verdicts on
// an already-closed record report a conflict rather than overwriting the
// earlier review.
func (l *Ledgersync) ReviewQuarantine(ctx context.Context, quarantineID string, decision model.ReviewDecision, corrections map[string]interface{}, reviewerID, notes string) (*model.QuarantineRecord, error) {
	if reviewerID == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "reviewer identity is required", nil)
	}

	quarantined, err := l.datasource.GetQuarantineRecord(ctx, quarantineID)
	if err != nil {
		return nil, err
	}
	if !quarantined.Status.IsOpen() {
		return nil, apierror.NewAPIError(apierror.ErrAlreadyResolved,
			fmt.Sprintf("quarantine record %s was already reviewed by %s", quarantineID, quarantined.ResolvedBy), nil)
	}

	switch decision {
	case model.DecisionRejected:
		if err := l.datasource.CloseQuarantineRecord(ctx, quarantineID, model.QuarantineRejected, reviewerID, notes); err != nil {
			return nil, err
		}
	case model.DecisionResolved:
		if err := l.resolveQuarantine(ctx, quarantined, corrections, reviewerID, notes); err != nil {
			return nil, err
		}
	default:
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput,
			fmt.Sprintf("unknown review decision %q", decision), nil)
	}

	return l.datasource.GetQuarantineRecord(ctx, quarantineID)
}

func (l *Ledgersync) resolveQuarantine(ctx context.Context, quarantined *model.QuarantineRecord, corrections map[string]interface{}, reviewerID, notes string) error {
	record, err := l.datasource.GetBillingRecord(ctx, quarantined.EntityID)
	if err != nil {
		return err
	}

	if err := record.ApplyCorrections(corrections); err != nil {
		return apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	}
	if err := record.Validate(); err != nil {
		// Keep the attempted corrections with the record so the next pass
		// does not start over.
		if markErr := l.datasource.MarkQuarantineInReview(ctx, quarantined.QuarantineID, corrections); markErr != nil {
			return markErr
		}
		return apierror.NewAPIError(apierror.ErrInvalidInput,
			fmt.Sprintf("corrected record still invalid: %v", err), err)
	}

	if err := l.datasource.UpdateBillingRecordData(ctx, record); err != nil {
		return err
	}
	if err := l.datasource.CloseQuarantineRecord(ctx, quarantined.QuarantineID, model.QuarantineResolved, reviewerID, notes); err != nil {
		return err
	}

	_, _, err = l.EnqueueSync(ctx, model.EnqueueOptions{
		EntityID:  quarantined.EntityID,
		Operation: model.OperationUpdate,
		Priority:  model.PriorityHigh,
		Trigger:   model.TriggerManual,
	})
	if err != nil {
		logrus.Errorf("quarantine %s resolved but re-enqueue failed: %v", quarantined.QuarantineID, err)
	}
	return nil
}

// BulkUpdateQuarantine applies one verdict to many records. Records succeed
// or fail independently; the result carries a per-record outcome.
func (l *Ledgersync) BulkUpdateQuarantine(ctx context.Context, quarantineIDs []string, decision model.ReviewDecision, reviewerID, notes string) ([]model.BulkUpdateResult, error) {
	if len(quarantineIDs) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "bulk update needs at least one quarantine id", nil)
	}

	results := make([]model.BulkUpdateResult, 0, len(quarantineIDs))
	for _, quarantineID := range quarantineIDs {
		result := model.BulkUpdateResult{QuarantineID: quarantineID}
		if _, err := l.ReviewQuarantine(ctx, quarantineID, decision, nil, reviewerID, notes); err != nil {
			result.Error = err.Error()
		} else {
			result.Updated = true
		}
		results = append(results, result)
	}
	return results, nil
}
