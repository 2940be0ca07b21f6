package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/file-toolbox/internal/core/domain"
)

type ledgerEntry struct {
	event    domain.ConversionCompleted
	released domain.ReleaseReason
}

type ledgerFake struct {
	mu      sync.Mutex
	entries map[string]*ledgerEntry
	listErr error
}

func newLedgerFake(events ...domain.ConversionCompleted) *ledgerFake {
	l := &ledgerFake{entries: make(map[string]*ledgerEntry)}
	for _, e := range events {
		l.entries[e.Filename] = &ledgerEntry{event: e}
	}
	return l
}

func (l *ledgerFake) Record(_ context.Context, event domain.ConversionCompleted) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[event.Filename] = &ledgerEntry{event: event}
	return nil
}

func (l *ledgerFake) MarkReleased(_ context.Context, filename string, reason domain.ReleaseReason, _ time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[filename]
	if !ok || entry.released != "" {
		return domain.WrapError(domain.ErrArtifactNotFound, "mark released", errors.New(filename))
	}
	entry.released = reason
	return nil
}

func (l *ledgerFake) ListUnreleased(_ context.Context, createdBefore time.Time, limit int) ([]domain.ConversionCompleted, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listErr != nil {
		return nil, l.listErr
	}
	var out []domain.ConversionCompleted
	for _, entry := range l.entries {
		if entry.released == "" && entry.event.CreatedAt.Before(createdBefore) {
			out = append(out, entry.event)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *ledgerFake) releasedAs(filename string) domain.ReleaseReason {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.entries[filename]; ok {
		return entry.released
	}
	return ""
}
