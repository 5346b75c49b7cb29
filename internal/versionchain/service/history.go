package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"lendus/internal/versionchain/models"
	id "lendus/pkg/domain"
	dErrors "lendus/pkg/domain-errors"
	"lendus/pkg/platform/sentinel"
)

// GetHistory returns the chain newest first, starting at the current version
// or, when none is current, at the newest surviving version. The walk follows
// PreviousVersionID with a visited set and a depth cap; a link to another
// chain, to a current version or back into the walk is CodeInvariantViolation.
// Soft-deleted versions are walked through but not returned.
func (s *Service) GetHistory(ctx context.Context, tenant id.TenantID, owner id.OwnerRef, t models.RecordType) ([]*models.VersionedRecord, error) {
	return s.GetHistoryOf(ctx, models.ChainKey{Tenant: tenant, Owner: owner, Type: t})
}

// GetHistoryOf is GetHistory for the chain named by key, slot included.
func (s *Service) GetHistoryOf(ctx context.Context, key models.ChainKey) ([]*models.VersionedRecord, error) {
	start := time.Now()
	defer s.metrics.ObserveOperation(component, "get_history", start)

	key, err := validateKey(key)
	if err != nil {
		return nil, err
	}

	head, err := s.store.FindCurrent(ctx, key, false)
	if errors.Is(err, sentinel.ErrNotFound) {
		head, err = s.store.FindLatest(ctx, key)
	}
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return []*models.VersionedRecord{}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load history head")
	}

	history := []*models.VersionedRecord{head}
	visited := map[id.RecordID]struct{}{head.ID: {}}
	cursor := head
	for cursor.PreviousVersionID != nil {
		if len(visited) >= s.maxDepth {
			return nil, s.brokenChain(key, cursor.ID, "history exceeds maximum depth")
		}
		prevID := *cursor.PreviousVersionID
		if _, seen := visited[prevID]; seen {
			return nil, s.brokenChain(key, prevID, "cycle in version chain")
		}
		prev, err := s.store.FindByID(ctx, key.Tenant, prevID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, s.brokenChain(key, prevID, "dangling previous version link")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load previous version")
		}
		if !prev.SameChain(head) {
			return nil, s.brokenChain(key, prevID, "previous version belongs to another chain")
		}
		if prev.IsCurrent {
			return nil, s.brokenChain(key, prevID, "previous version is still current")
		}
		visited[prevID] = struct{}{}
		history = append(history, prev)
		cursor = prev
	}

	out := history[:0]
	for _, rec := range history {
		if !rec.IsDeleted() {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Service) brokenChain(key models.ChainKey, at id.RecordID, msg string) error {
	s.logger.Error("version chain invariant violated",
		zap.String("chain", key.String()),
		zap.String("record_id", at.String()),
		zap.String("reason", msg))
	return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("%s: chain %s at %s", msg, key, at))
}
