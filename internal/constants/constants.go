package constants

const (
	MaxHintLevel     = 5
	MaxGuesses       = 5
	BasePoints       = 5
	MinPoints        = 1
	NearMissRadiusKm = 250.0
	LeaderboardTop   = 5
)

const (
	HintPopulation = "population"
	HintArea       = "area"
	HintFlag       = "flag"
	HintCapital    = "capital"
	HintBorders    = "borders"
)

// DefaultHintOrder is the canonical reveal order; HINT_ORDER overrides it.
var DefaultHintOrder = []string{HintPopulation, HintArea, HintFlag, HintCapital, HintBorders}

const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
	DifficultyAll    = "all"
)

const (
	DifficultyBandSize = 30
)

const (
	SessionCookieName = "session_id"
	CSRFCookieName    = "csrf_token"
)

const (
	RouteHome        = "/"
	RouteNewGame     = "/new-game"
	RouteGuess       = "/guess"
	RouteGuessMap    = "/guess/map"
	RouteHelp        = "/help"
	RouteNextRound   = "/next-round"
	RouteExit        = "/exit"
	RouteGameState   = "/game-state"
	RouteLeaderboard = "/leaderboard"
	RouteHealthz     = "/healthz"
)

const (
	ErrorCodeNoGame               = "no_game"
	ErrorCodeRoundOver            = "round_over"
	ErrorCodeRoundInProgress      = "round_in_progress"
	ErrorCodeGameOver             = "game_over"
	ErrorCodeDuplicateGuess       = "duplicate_guess"
	ErrorCodeEmptyGuess           = "empty_guess"
	ErrorCodeInvalidCoordinates   = "invalid_coordinates"
	ErrorCodeHelpUnavailable      = "help_unavailable"
	ErrorCodeInvalidConfiguration = "invalid_configuration"
	ErrorCodeInternal             = "internal_error"
)

type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
)
