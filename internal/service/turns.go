package service

import (
	"context"
	"log/slog"

	"threadhub/internal/model"
	"threadhub/internal/reconcile"
)

// TurnService serves the reconciled view of a thread. The view is always
// recomputed from the full stored sequence; the cache only short-circuits
// recomputation when nothing was appended since.
type TurnService struct {
	messages *MessageService
	cache    TurnCache
	logger   *slog.Logger
}

func NewTurnService(messages *MessageService, cache TurnCache, logger *slog.Logger) *TurnService {
	if cache == nil {
		cache = NopTurnCache{}
	}
	return &TurnService{messages: messages, cache: cache, logger: logger}
}

func (s *TurnService) Turns(ctx context.Context, threadID string) (*model.ThreadTurns, error) {
	lastSeq, err := s.messages.LastSeq(ctx, threadID)
	if err != nil {
		return nil, err
	}

	cached, ok, err := s.cache.Get(ctx, threadID)
	if err != nil {
		s.logger.Warn("turn cache read failed", "thread_id", threadID, "error", err)
	} else if ok && cached.LastSeq == lastSeq {
		return cached, nil
	}

	msgs, snapshotSeq, err := s.messages.Snapshot(ctx, threadID)
	if err != nil {
		return nil, err
	}
	view := Build(threadID, snapshotSeq, msgs)
	if len(view.Orphans) > 0 {
		s.logger.Debug("orphan tool results dropped", "thread_id", threadID, "orphans", view.Orphans)
	}
	if err := s.cache.Put(ctx, view); err != nil {
		s.logger.Warn("turn cache write failed", "thread_id", threadID, "error", err)
	}
	return view, nil
}

// Invalidate drops any cached view for the thread.
func (s *TurnService) Invalidate(ctx context.Context, threadID string) {
	if err := s.cache.Invalidate(ctx, threadID); err != nil {
		s.logger.Warn("turn cache invalidate failed", "thread_id", threadID, "error", err)
	}
}

// Build reconciles msgs into the view of threadID at lastSeq.
func Build(threadID string, lastSeq int64, msgs []reconcile.Message) *model.ThreadTurns {
	res := reconcile.Fold(msgs)
	return &model.ThreadTurns{
		ThreadID: threadID,
		LastSeq:  lastSeq,
		Turns:    res.Turns,
		Orphans:  res.Orphans,
	}
}
