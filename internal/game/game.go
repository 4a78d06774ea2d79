package game

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	constants "github.com/CodeAndHammer/landludo/internal/constants"
	models "github.com/CodeAndHammer/landludo/internal/models"
	util "github.com/CodeAndHammer/landludo/internal/util"
)

// NewSession validates the setup and opens the first round.
func NewSession(ctx context.Context, setup models.Setup) (*models.GameSession, error) {
	names := lo.Uniq(lo.Compact(lo.Map(setup.PlayerNames, func(n string, _ int) string {
		return strings.TrimSpace(n)
	})))
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no players", models.ErrInvalidConfiguration)
	}
	if setup.TargetScore < 1 {
		return nil, fmt.Errorf("%w: target score must be at least 1, got %d", models.ErrInvalidConfiguration, setup.TargetScore)
	}
	if len(setup.Pool) == 0 {
		return nil, fmt.Errorf("%w: country pool is empty", models.ErrInvalidConfiguration)
	}

	hintOrder := setup.HintOrder
	if err := ValidateHintOrder(hintOrder); err != nil {
		hintOrder = constants.DefaultHintOrder
	}
	helpPolicy := setup.HelpPolicy
	if helpPolicy.Cost < 0 {
		helpPolicy.Cost = 0
	}

	now := time.Now()
	s := &models.GameSession{
		ID: uuid.NewString(),
		Players: lo.Map(names, func(n string, _ int) *models.Player {
			return &models.Player{Name: n}
		}),
		TargetScore:    setup.TargetScore,
		Pool:           slices.Clone(setup.Pool),
		Used:           []string{},
		Difficulty:     setup.Difficulty,
		ShowLabels:     setup.ShowLabels,
		CodeNames:      setup.CodeNames,
		HintOrder:      hintOrder,
		HelpPolicy:     helpPolicy,
		Shapes:         setup.Shapes,
		CreatedAt:      now,
		LastAccessTime: now,
	}
	s.Round, s.Used = StartRound(ctx, s.Pool, s.Used)

	util.LogInfoCtx(ctx, "New game %s: %d players, target %d, pool %d (%s)",
		s.ID, len(s.Players), s.TargetScore, len(s.Pool), s.Difficulty)
	return s, nil
}

// StartRound draws a country not yet in used. Once every country has been
// played, used is emptied and the whole pool is eligible again. pool must
// be non-empty.
func StartRound(ctx context.Context, pool []models.Country, used []string) (models.RoundState, []string) {
	available := lo.Filter(pool, func(c models.Country, _ int) bool {
		return !slices.Contains(used, c.Name)
	})
	if len(available) == 0 {
		util.LogInfoCtx(ctx, "All %d countries played, reshuffling pool", len(pool))
		used = []string{}
		available = pool
	}

	selected := pickRandom(ctx, available)
	used = append(slices.Clone(used), selected.Name)

	return models.RoundState{
		Target:      selected,
		HintLevel:   1,
		MapGuesses:  []models.MapGuess{},
		TextGuesses: []string{},
	}, used
}

func pickRandom(ctx context.Context, candidates []models.Country) models.Country {
	select {
	case <-ctx.Done():
		util.LogWarnCtx(ctx, "Country selection cancelled: %v", ctx.Err())
		return candidates[0]
	default:
	}

	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(candidates))))
	if err != nil {
		util.LogWarnCtx(ctx, "Error generating random number: %v, using fallback", err)
		return candidates[0]
	}
	return candidates[n.Int64()]
}

func CurrentPlayer(s *models.GameSession) *models.Player {
	return s.Players[s.CurrentPlayerIndex]
}

// AdvanceTurn hands the turn to the next player in creation order.
func AdvanceTurn(s *models.GameSession) {
	s.CurrentPlayerIndex = (s.CurrentPlayerIndex + 1) % len(s.Players)
}

// NextRound rotates the turn and draws a new country. The current round
// must be finished and the game must still be running.
func NextRound(ctx context.Context, s *models.GameSession) error {
	if !s.Round.RoundOver {
		return models.ErrRoundInProgress
	}
	if IsGameOver(s) {
		return models.ErrGameOver
	}
	AdvanceTurn(s)
	s.Round, s.Used = StartRound(ctx, s.Pool, s.Used)
	util.LogInfoCtx(ctx, "Game %s: round for %s", s.ID, CurrentPlayer(s).Name)
	return nil
}

// IsGameOver holds once someone reached the target and everybody has played
// the same number of rounds.
func IsGameOver(s *models.GameSession) bool {
	reached := lo.SomeBy(s.Players, func(p *models.Player) bool {
		return p.Score >= s.TargetScore
	})
	if !reached {
		return false
	}
	rounds := lo.Uniq(lo.Map(s.Players, func(p *models.Player, _ int) int {
		return p.RoundsPlayed
	}))
	return len(rounds) == 1
}

// Winners returns every player tied at the top score.
func Winners(s *models.GameSession) []*models.Player {
	best := lo.MaxBy(s.Players, func(a, b *models.Player) bool {
		return a.Score > b.Score
	})
	if best == nil {
		return nil
	}
	return lo.Filter(s.Players, func(p *models.Player, _ int) bool {
		return p.Score == best.Score
	})
}

// Standings ranks players by score; ties keep turn order.
func Standings(s *models.GameSession) []models.Standing {
	ranked := slices.Clone(s.Players)
	slices.SortStableFunc(ranked, func(a, b *models.Player) int {
		return b.Score - a.Score
	})
	return lo.Map(ranked, func(p *models.Player, i int) models.Standing {
		return models.Standing{
			Rank:    i + 1,
			Name:    p.Name,
			Score:   p.Score,
			Rounds:  p.RoundsPlayed,
			Average: p.Average(),
		}
	})
}

// IsFullPool reports whether results count towards the leaderboard.
func IsFullPool(s *models.GameSession) bool {
	return s.Difficulty == constants.DifficultyAll
}
