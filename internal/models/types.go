package models

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	geo "github.com/CodeAndHammer/landludo/internal/geo"
)

type Country struct {
	Name        string   `json:"name"`
	Code        string   `json:"code"`
	Population  int64    `json:"population"`
	Area        *float64 `json:"area,omitempty"`
	Capitals    []string `json:"capitals"`
	FlagURL     *string  `json:"flagUrl,omitempty"`
	BorderCodes []string `json:"borders"`
}

type Player struct {
	Name         string `json:"name"`
	Score        int    `json:"score"`
	RoundsPlayed int    `json:"roundsPlayed"`
}

// AddScore credits a finished round, including rounds worth zero points.
func (p *Player) AddScore(points int) {
	if points > 0 {
		p.Score += points
	}
	p.RoundsPlayed++
}

// Average is points per round, zero before the first round.
func (p *Player) Average() float64 {
	if p.RoundsPlayed == 0 {
		return 0
	}
	return float64(p.Score) / float64(p.RoundsPlayed)
}

type MapGuess struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	DistanceKm  float64 `json:"distanceKm"`
	HasDistance bool    `json:"hasDistance"`
	Inside      bool    `json:"inside"`
}

type RoundState struct {
	Target       Country    `json:"-"`
	HintLevel    int        `json:"hintLevel"`
	GuessCount   int        `json:"guessCount"`
	RoundOver    bool       `json:"roundOver"`
	Message      string     `json:"message"`
	Success      bool       `json:"success"`
	Revealed     bool       `json:"revealed"`
	Scored       bool       `json:"-"`
	Points       int        `json:"points"`
	MapGuesses   []MapGuess `json:"mapGuesses"`
	TextGuesses  []string   `json:"textGuesses"`
	HelpUses     int        `json:"helpUses"`
	HelpVisible  bool       `json:"helpVisible"`
	HelpRadiusKm float64    `json:"helpRadiusKm"`
}

type OutcomeKind string

const (
	OutcomeCorrect  OutcomeKind = "correct"
	OutcomeWrong    OutcomeKind = "wrong"
	OutcomeHit      OutcomeKind = "hit"
	OutcomeNearMiss OutcomeKind = "near_miss"
	OutcomeMiss     OutcomeKind = "miss"
)

// GuessOutcome is what a single guess produced.
type GuessOutcome struct {
	Kind        OutcomeKind `json:"kind"`
	Points      int         `json:"points"`
	DistanceKm  float64     `json:"distanceKm"`
	HasDistance bool        `json:"hasDistance"`
	RoundOver   bool        `json:"roundOver"`
	Message     string      `json:"message"`
}

type Hint struct {
	Level    int    `json:"level"`
	Kind     string `json:"kind"`
	Label    string `json:"label"`
	Text     string `json:"text"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// HelpPolicy prices the help circle. Cost is deducted once per round unless
// Stack is set, in which case every activation costs Cost.
type HelpPolicy struct {
	Cost  int
	Stack bool
}

type Standing struct {
	Rank    int     `json:"rank"`
	Name    string  `json:"name"`
	Score   int     `json:"score"`
	Rounds  int     `json:"rounds"`
	Average float64 `json:"average"`
}

type GameSession struct {
	ID                 string            `json:"id"`
	Players            []*Player         `json:"players"`
	CurrentPlayerIndex int               `json:"currentPlayerIndex"`
	TargetScore        int               `json:"targetScore"`
	Pool               []Country         `json:"-"`
	Used               []string          `json:"-"`
	Round              RoundState        `json:"round"`
	Difficulty         string            `json:"difficulty"`
	ShowLabels         bool              `json:"showLabels"`
	CodeNames          map[string]string `json:"-"`
	HintOrder          []string          `json:"-"`
	HelpPolicy         HelpPolicy        `json:"-"`
	Shapes             ShapeResolver     `json:"-"`
	Recorded           bool              `json:"-"`
	CreatedAt          time.Time         `json:"createdAt"`
	LastAccessTime     time.Time         `json:"lastAccessTime"`
	Mu                 sync.Mutex        `json:"-"`
}

// Setup carries everything needed to open a GameSession.
type Setup struct {
	PlayerNames []string
	TargetScore int
	Pool        []Country
	Difficulty  string
	ShowLabels  bool
	CodeNames   map[string]string
	HintOrder   []string
	HelpPolicy  HelpPolicy
	Shapes      ShapeResolver
}

// ShapeResolver is the geodata collaborator.
type ShapeResolver interface {
	ResolveCountry(code, name string) (*geo.Shape, bool)
}

// CountrySource is the country catalog collaborator.
type CountrySource interface {
	Countries(ctx context.Context) ([]Country, error)
}

// Leaderboard is the cross-session tally collaborator.
type Leaderboard interface {
	Record(ctx context.Context, players []*Player) error
	Top(ctx context.Context, n int) ([]Standing, error)
}

type RateLimiterWithTime struct {
	Limiter    *rate.Limiter
	LastAccess time.Time
}

type App struct {
	Catalog        CountrySource
	Shapes         ShapeResolver
	Leaderboard    Leaderboard
	HintOrder      []string
	HelpPolicy     HelpPolicy
	GameSessions   map[string]*GameSession
	SessionMutex   sync.RWMutex
	LimiterMap     map[string]*RateLimiterWithTime
	LimiterMutex   sync.RWMutex
	IsProduction   bool
	StartTime      time.Time
	CookieMaxAge   time.Duration
	StaticCacheAge time.Duration
	RateLimitRPS   int
	RateLimitBurst int
	RateLimiterTTL time.Duration
	SessionTTL     time.Duration
}
