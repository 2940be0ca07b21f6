package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/file-toolbox/internal/core/domain"
	"github.com/kirillkom/file-toolbox/internal/core/ports"
)

type ExpireArtifactUseCase struct {
	storage ports.ArtifactStorage
	ledger  ports.BatchLedger
	ttl     time.Duration
	now     func() time.Time
}

func NewExpireArtifactUseCase(storage ports.ArtifactStorage, ttl time.Duration) *ExpireArtifactUseCase {
	return &ExpireArtifactUseCase{
		storage: storage,
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (uc *ExpireArtifactUseCase) WithLedger(ledger ports.BatchLedger) *ExpireArtifactUseCase {
	uc.ledger = ledger
	return uc
}

// Expire waits until the artifact's TTL elapses and removes it if it is still stored.
// Artifacts already downloaded (and therefore released) report removed=false.
func (uc *ExpireArtifactUseCase) Expire(ctx context.Context, event domain.ConversionCompleted) (bool, error) {
	if wait := event.CreatedAt.Add(uc.ttl).Sub(uc.now()); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
	}
	return uc.remove(ctx, event)
}

// Sweep expires recorded artifacts whose TTL already elapsed. It catches events lost while
// the worker was down and is the only expiry path when no event bus is configured.
func (uc *ExpireArtifactUseCase) Sweep(ctx context.Context, limit int) (int, error) {
	if uc.ledger == nil {
		return 0, nil
	}
	due, err := uc.ledger.ListUnreleased(ctx, uc.now().Add(-uc.ttl), limit)
	if err != nil {
		return 0, fmt.Errorf("list unreleased artifacts: %w", err)
	}

	removed := 0
	var errs []error
	for _, event := range due {
		ok, err := uc.remove(ctx, event)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			removed++
		}
	}
	if len(due) > 0 {
		slog.Info("artifact_sweep_done", "due", len(due), "removed", removed, "failed", len(errs))
	}
	return removed, errors.Join(errs...)
}

func (uc *ExpireArtifactUseCase) remove(ctx context.Context, event domain.ConversionCompleted) (bool, error) {
	if err := uc.storage.Remove(ctx, event.Filename); err != nil {
		if domain.IsKind(err, domain.ErrArtifactNotFound) {
			markReleased(ctx, uc.ledger, event.Filename, domain.ReleaseExpired, uc.now())
			return false, nil
		}
		return false, err
	}
	slog.Info("artifact_expired", "batch_id", event.BatchID, "filename", event.Filename)
	markReleased(ctx, uc.ledger, event.Filename, domain.ReleaseExpired, uc.now())
	return true, nil
}
