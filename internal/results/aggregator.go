// Package results computes per-option vote counts and contributor names for
// a room's polls.
package results

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/identity"
	"github.com/classpulse/backend/internal/models"
)

// OptionResult is the tally for a single poll option.
type OptionResult struct {
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// PollResults maps option text to its tally.
type PollResults map[string]OptionResult

// RoomResults maps poll question text to its per-option tallies. When two
// polls in one room share question text, the later poll wins the key; this
// collision is a known property of the keying, kept deliberately.
type RoomResults map[string]PollResults

// RoomReader supplies a consistent snapshot of a room.
type RoomReader interface {
	GetByCode(ctx context.Context, code string) (*models.Room, error)
}

// Aggregator computes results on demand from room snapshots.
type Aggregator struct {
	reader   RoomReader
	resolver identity.Resolver
	logger   *zap.Logger
}

// NewAggregator creates a result aggregator.
func NewAggregator(reader RoomReader, resolver identity.Resolver, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{reader: reader, resolver: resolver, logger: logger}
}

// GetResults tallies every poll in the room. Answers whose index falls
// outside [0, len(options)) are excluded entirely. Contributor IDs are
// batch-resolved to display names; unresolved IDs degrade to a placeholder
// instead of failing the aggregation.
func (a *Aggregator) GetResults(ctx context.Context, roomCode string) (RoomResults, error) {
	room, err := a.reader.GetByCode(ctx, roomCode)
	if err != nil {
		return nil, err
	}

	idSet := make(map[uuid.UUID]struct{})
	for _, poll := range room.Polls {
		for _, ans := range poll.Answers {
			if ans.AnswerIndex >= 0 && ans.AnswerIndex < len(poll.Options) {
				idSet[ans.UserID] = struct{}{}
			}
		}
	}
	names := a.resolveNames(ctx, idSet)

	out := make(RoomResults, len(room.Polls))
	for _, poll := range room.Polls {
		counts := make([]int, len(poll.Options))
		users := make([][]string, len(poll.Options))
		for i := range users {
			users[i] = []string{}
		}
		for _, ans := range poll.Answers {
			if ans.AnswerIndex < 0 || ans.AnswerIndex >= len(poll.Options) {
				continue
			}
			counts[ans.AnswerIndex]++
			users[ans.AnswerIndex] = append(users[ans.AnswerIndex], names[ans.UserID])
		}

		byOption := make(PollResults, len(poll.Options))
		for i, option := range poll.Options {
			byOption[option] = OptionResult{Count: counts[i], Users: users[i]}
		}
		out[poll.Question] = byOption
	}
	return out, nil
}

// resolveNames maps every contributing ID to a display name, substituting
// the placeholder for resolver misses or a resolver failure.
func (a *Aggregator) resolveNames(ctx context.Context, idSet map[uuid.UUID]struct{}) map[uuid.UUID]string {
	ids := make([]uuid.UUID, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	resolved := map[uuid.UUID]string{}
	if a.resolver != nil && len(ids) > 0 {
		r, err := a.resolver.ResolveDisplayNames(ctx, ids)
		if err != nil {
			a.logger.Warn("display name resolution failed", zap.Error(err))
		} else {
			resolved = r
		}
	}

	names := make(map[uuid.UUID]string, len(ids))
	for _, id := range ids {
		if name, ok := resolved[id]; ok && name != "" {
			names[id] = name
		} else {
			names[id] = identity.PlaceholderName
		}
	}
	return names
}
