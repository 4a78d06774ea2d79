package game

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/paulmach/orb"

	constants "github.com/CodeAndHammer/landludo/internal/constants"
	geo "github.com/CodeAndHammer/landludo/internal/geo"
	models "github.com/CodeAndHammer/landludo/internal/models"
	util "github.com/CodeAndHammer/landludo/internal/util"
)

// Points is the award for a correct guess at the given hint level:
// 5, 4, 3, 2, 1 for levels 1 through 5.
func Points(hintLevel int) int {
	return max(constants.BasePoints-(hintLevel-1), constants.MinPoints)
}

// HelpPenalty is what the help circle costs at the moment of a map hit.
func HelpPenalty(policy models.HelpPolicy, uses int) int {
	if uses <= 0 || policy.Cost <= 0 {
		return 0
	}
	if policy.Stack {
		return policy.Cost * uses
	}
	return policy.Cost
}

func NormalizeGuess(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}

// SubmitTextGuess compares a typed country name against the target.
func SubmitTextGuess(ctx context.Context, s *models.GameSession, input string) (models.GuessOutcome, error) {
	if s.Round.RoundOver {
		return models.GuessOutcome{}, models.ErrRoundOver
	}
	guess := NormalizeGuess(input)
	if guess == "" {
		return models.GuessOutcome{}, models.ErrEmptyGuess
	}

	next := cloneRound(s.Round)
	next.TextGuesses = append(next.TextGuesses, strings.TrimSpace(input))
	player := CurrentPlayer(s)

	var out models.GuessOutcome
	if guess == NormalizeGuess(next.Target.Name) {
		pts := Points(next.HintLevel)
		finishRound(&next, player, pts, true)
		next.Message = fmt.Sprintf("Correct! +%d points.", pts)
		out = models.GuessOutcome{Kind: models.OutcomeCorrect, Points: pts}
		util.LogInfoCtx(ctx, "Game %s: %s named %s at hint %d (+%d)", s.ID, player.Name, next.Target.Name, next.HintLevel, pts)
	} else {
		out = models.GuessOutcome{Kind: models.OutcomeWrong}
		if registerWrongGuess(&next, player) {
			next.Message = fmt.Sprintf("Wrong. Answer: %s.", next.Target.Name)
			util.LogInfoCtx(ctx, "Game %s: %s ran out of guesses on %s", s.ID, player.Name, next.Target.Name)
		} else {
			next.Message = "Wrong, try again!"
		}
	}

	s.Round = next
	out.RoundOver = next.RoundOver
	out.Message = next.Message
	return out, nil
}

// SubmitGeoGuess classifies a map click against the target's borders and
// centroid. A target without geodata can only miss.
func SubmitGeoGuess(ctx context.Context, s *models.GameSession, lat, lon float64) (models.GuessOutcome, error) {
	if s.Round.RoundOver {
		return models.GuessOutcome{}, models.ErrRoundOver
	}
	if !geo.ValidCoordinates(lat, lon) {
		return models.GuessOutcome{}, models.ErrInvalidCoordinates
	}
	if n := len(s.Round.MapGuesses); n > 0 {
		last := s.Round.MapGuesses[n-1]
		if last.Lat == lat && last.Lon == lon {
			return models.GuessOutcome{}, models.ErrDuplicateGuess
		}
	}

	shape := TargetShape(s)
	match := geo.Evaluate(orb.Point{lon, lat}, shape)

	next := cloneRound(s.Round)
	next.HelpVisible = false
	next.MapGuesses = append(next.MapGuesses, models.MapGuess{
		Lat:         lat,
		Lon:         lon,
		DistanceKm:  match.DistanceKm,
		HasDistance: match.HasDistance,
		Inside:      match.Kind == geo.MatchHit,
	})
	player := CurrentPlayer(s)
	out := models.GuessOutcome{DistanceKm: match.DistanceKm, HasDistance: match.HasDistance}

	switch match.Kind {
	case geo.MatchHit, geo.MatchNearMiss:
		pts := max(Points(next.HintLevel)-HelpPenalty(s.HelpPolicy, next.HelpUses), 0)
		finishRound(&next, player, pts, true)
		if match.Kind == geo.MatchHit {
			out.Kind = models.OutcomeHit
			next.Message = fmt.Sprintf("Hit! Inside the borders of %s. +%d points.", next.Target.Name, pts)
		} else {
			out.Kind = models.OutcomeNearMiss
			next.Message = fmt.Sprintf("Close hit! Distance: %d km. +%d points.", match.WholeKm(), pts)
		}
		out.Points = pts
		util.LogInfoCtx(ctx, "Game %s: %s %s on %s (+%d)", s.ID, player.Name, match.Kind, next.Target.Name, pts)
	default:
		out.Kind = models.OutcomeMiss
		if match.HasDistance {
			next.Message = fmt.Sprintf("Wrong, %d km away.", match.WholeKm())
		} else {
			next.Message = "Wrong, no map data for this country."
		}
		if registerWrongGuess(&next, player) {
			next.Message += fmt.Sprintf(" Round over. Answer: %s.", next.Target.Name)
			util.LogInfoCtx(ctx, "Game %s: %s ran out of map guesses on %s", s.ID, player.Name, next.Target.Name)
		}
	}

	s.Round = next
	out.RoundOver = next.RoundOver
	out.Message = next.Message
	return out, nil
}

// UseHelp draws a circle around the last map guess whose radius is the
// distance to the target centroid. It is offered once per map guess.
func UseHelp(ctx context.Context, s *models.GameSession) (float64, error) {
	if s.Round.RoundOver {
		return 0, models.ErrRoundOver
	}
	if len(s.Round.MapGuesses) == 0 || s.Round.HelpVisible {
		return 0, models.ErrHelpUnavailable
	}
	shape := TargetShape(s)
	if shape == nil {
		return 0, fmt.Errorf("%w: no geodata for target", models.ErrHelpUnavailable)
	}

	last := s.Round.MapGuesses[len(s.Round.MapGuesses)-1]
	radius := geo.DistanceKm(orb.Point{last.Lon, last.Lat}, shape.Centroid)

	next := cloneRound(s.Round)
	next.HelpUses++
	next.HelpVisible = true
	next.HelpRadiusKm = radius
	s.Round = next

	util.LogInfoCtx(ctx, "Game %s: help circle %d used by %s (radius %.0f km)", s.ID, next.HelpUses, CurrentPlayer(s).Name, radius)
	return radius, nil
}

// HelpAvailable mirrors the UseHelp preconditions for rendering.
func HelpAvailable(s *models.GameSession) bool {
	return !s.Round.RoundOver && len(s.Round.MapGuesses) > 0 && !s.Round.HelpVisible && TargetShape(s) != nil
}

// TargetShape resolves the current target, nil when geodata is missing.
func TargetShape(s *models.GameSession) *geo.Shape {
	if s.Shapes == nil {
		return nil
	}
	shape, ok := s.Shapes.ResolveCountry(s.Round.Target.Code, s.Round.Target.Name)
	if !ok {
		return nil
	}
	return shape
}

// registerWrongGuess counts the guess and advances the hint. It returns true
// when the round is exhausted: the hint could not advance any further or the
// guess budget is spent. The round then closes with zero points.
func registerWrongGuess(r *models.RoundState, player *models.Player) bool {
	r.GuessCount++
	advanced := false
	if r.HintLevel < constants.MaxHintLevel {
		r.HintLevel++
		advanced = true
	}
	if !advanced || r.GuessCount >= constants.MaxGuesses {
		finishRound(r, player, 0, false)
		r.Revealed = true
		return true
	}
	return false
}

// finishRound closes the round and credits the player exactly once.
func finishRound(r *models.RoundState, player *models.Player, points int, success bool) {
	r.RoundOver = true
	r.Success = success
	if r.Scored {
		return
	}
	r.Scored = true
	r.Points = points
	player.AddScore(points)
}

func cloneRound(r models.RoundState) models.RoundState {
	r.MapGuesses = slices.Clone(r.MapGuesses)
	r.TextGuesses = slices.Clone(r.TextGuesses)
	return r
}
