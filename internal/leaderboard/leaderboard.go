// Package leaderboard keeps a cross-session tally of points and rounds per
// player name. The tally is always read and written as a whole document.
package leaderboard

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"

	models "github.com/CodeAndHammer/landludo/internal/models"
	util "github.com/CodeAndHammer/landludo/internal/util"
)

type Entry struct {
	TotalPoints int `json:"total_points"`
	TotalRounds int `json:"total_rounds"`
}

// Average is points per round; callers filter out zero-round entries first.
func (e Entry) Average() float64 {
	if e.TotalRounds == 0 {
		return 0
	}
	return float64(e.TotalPoints) / float64(e.TotalRounds)
}

// Board maps player name to that player's running totals.
type Board map[string]Entry

// Accumulate adds a finished game's players to the board.
func (b Board) Accumulate(players []*models.Player) {
	for _, p := range players {
		e := b[p.Name]
		e.TotalPoints += p.Score
		e.TotalRounds += p.RoundsPlayed
		b[p.Name] = e
	}
}

// Top ranks players with at least one round by average, highest first.
func (b Board) Top(n int) []models.Standing {
	named := lo.FilterMap(lo.Entries(b), func(kv lo.Entry[string, Entry], _ int) (models.Standing, bool) {
		if kv.Value.TotalRounds <= 0 {
			return models.Standing{}, false
		}
		return models.Standing{
			Name:    kv.Key,
			Score:   kv.Value.TotalPoints,
			Rounds:  kv.Value.TotalRounds,
			Average: kv.Value.Average(),
		}, true
	})
	slices.SortFunc(named, func(a, b models.Standing) int {
		if c := cmp.Compare(b.Average, a.Average); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	if n > 0 && len(named) > n {
		named = named[:n]
	}
	for i := range named {
		named[i].Rank = i + 1
	}
	return named
}

// Store persists a Board as one document.
type Store interface {
	Load(ctx context.Context) (Board, error)
	Save(ctx context.Context, b Board) error
	Close() error
}

// Service implements models.Leaderboard on top of a Store.
type Service struct {
	store Store
	mu    sync.Mutex
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Record loads the board, adds the players' totals and writes it back.
func (s *Service) Record(ctx context.Context, players []*models.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load leaderboard: %w", err)
	}
	board.Accumulate(players)
	if err := s.store.Save(ctx, board); err != nil {
		return fmt.Errorf("save leaderboard: %w", err)
	}
	util.LogInfoCtx(ctx, "Leaderboard updated for %d players", len(players))
	return nil
}

func (s *Service) Top(ctx context.Context, n int) ([]models.Standing, error) {
	board, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}
	return board.Top(n), nil
}

func (s *Service) Close() error {
	return s.store.Close()
}
