package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	catalog "github.com/CodeAndHammer/landludo/internal/catalog"
	constants "github.com/CodeAndHammer/landludo/internal/constants"
	game "github.com/CodeAndHammer/landludo/internal/game"
	models "github.com/CodeAndHammer/landludo/internal/models"
	session "github.com/CodeAndHammer/landludo/internal/session"
	util "github.com/CodeAndHammer/landludo/internal/util"
)

const pageTitle = "Landludo - Country Guesser"

type point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type circle struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	RadiusKm float64 `json:"radiusKm"`
}

// StateView is the JSON document the map widget polls.
type StateView struct {
	GameID        string               `json:"gameId"`
	CurrentPlayer string               `json:"currentPlayer"`
	Players       []*models.Player     `json:"players"`
	TargetScore   int                  `json:"targetScore"`
	Round         models.RoundState    `json:"round"`
	Hints         []models.Hint        `json:"hints"`
	HelpAvailable bool                 `json:"helpAvailable"`
	GameOver      bool                 `json:"gameOver"`
	ShowLabels    bool                 `json:"showLabels"`
	Solution      *point               `json:"solution,omitempty"`
	SolutionName  string               `json:"solutionName,omitempty"`
	HelpCircle    *circle              `json:"helpCircle,omitempty"`
	Standings     []models.Standing    `json:"standings,omitempty"`
	Outcome       *models.GuessOutcome `json:"outcome,omitempty"`
}

func HomeHandler(app *models.App, c *gin.Context) {
	sessionID := session.GetOrCreateSession(app, c)
	found, _ := session.WithGame(app, sessionID, func(gs *models.GameSession) error {
		renderGame(app, c, gs, "")
		return nil
	})
	if !found {
		renderSetup(app, c, "", "")
	}
}

func NewGameHandler(app *models.App, c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := session.GetOrCreateSession(app, c)

	target, err := strconv.Atoi(strings.TrimSpace(c.PostForm("target")))
	if err != nil {
		target = 0
	}
	difficulty := strings.ToLower(strings.TrimSpace(c.DefaultPostForm("difficulty", constants.DifficultyEasy)))
	if !catalog.IsDifficulty(difficulty) {
		difficulty = constants.DifficultyEasy
	}

	gs, err := createGame(ctx, app, models.Setup{
		PlayerNames: strings.Split(c.PostForm("players"), ","),
		TargetScore: target,
		Difficulty:  difficulty,
		ShowLabels:  c.DefaultPostForm("show_labels", "yes") != "no",
		HintOrder:   app.HintOrder,
		HelpPolicy:  app.HelpPolicy,
		Shapes:      app.Shapes,
	})
	if err != nil {
		util.LogWarnCtx(ctx, "Session %s could not start a game: %v", sessionID, err)
		renderSetup(app, c, ErrorCode(err), err.Error())
		return
	}

	session.SaveGameSession(app, sessionID, gs)
	redirectHome(c)
}

func createGame(ctx context.Context, app *models.App, setup models.Setup) (*models.GameSession, error) {
	if app.Catalog == nil {
		return nil, models.ErrInvalidConfiguration
	}
	countries, err := app.Catalog.Countries(ctx)
	if err != nil {
		return nil, err
	}
	pool, err := catalog.Pool(countries, setup.Difficulty)
	if err != nil {
		return nil, err
	}
	setup.Pool = pool
	setup.CodeNames = catalog.CodeNames(countries)
	return game.NewSession(ctx, setup)
}

func GuessHandler(app *models.App, c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := session.GetOrCreateSession(app, c)
	found, _ := session.WithGame(app, sessionID, func(gs *models.GameSession) error {
		_, err := game.SubmitTextGuess(ctx, gs, c.PostForm("guess"))
		if err == nil {
			concludeIfOver(ctx, app, gs)
		}
		renderGame(app, c, gs, ErrorCode(err))
		return err
	})
	if !found {
		renderSetup(app, c, constants.ErrorCodeNoGame, "")
	}
}

func MapGuessHandler(app *models.App, c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := session.GetOrCreateSession(app, c)

	lat, latErr := strconv.ParseFloat(c.PostForm("lat"), 64)
	lon, lonErr := strconv.ParseFloat(c.PostForm("lon"), 64)

	found, _ := session.WithGame(app, sessionID, func(gs *models.GameSession) error {
		if latErr != nil || lonErr != nil {
			respondError(c, http.StatusBadRequest, constants.ErrorCodeInvalidCoordinates, BuildState(gs))
			return models.ErrInvalidCoordinates
		}
		out, err := game.SubmitGeoGuess(ctx, gs, lat, lon)
		if err != nil {
			respondError(c, statusFor(err), ErrorCode(err), BuildState(gs))
			return err
		}
		concludeIfOver(ctx, app, gs)
		view := BuildState(gs)
		view.Outcome = &out
		c.JSON(http.StatusOK, view)
		return nil
	})
	if !found {
		respondError(c, http.StatusNotFound, constants.ErrorCodeNoGame, nil)
	}
}

func HelpHandler(app *models.App, c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := session.GetOrCreateSession(app, c)
	found, _ := session.WithGame(app, sessionID, func(gs *models.GameSession) error {
		if _, err := game.UseHelp(ctx, gs); err != nil {
			respondError(c, statusFor(err), ErrorCode(err), BuildState(gs))
			return err
		}
		c.JSON(http.StatusOK, BuildState(gs))
		return nil
	})
	if !found {
		respondError(c, http.StatusNotFound, constants.ErrorCodeNoGame, nil)
	}
}

func NextRoundHandler(app *models.App, c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := session.GetOrCreateSession(app, c)
	found, _ := session.WithGame(app, sessionID, func(gs *models.GameSession) error {
		err := game.NextRound(ctx, gs)
		if err != nil || isHTMX(c) {
			renderGame(app, c, gs, ErrorCode(err))
			return err
		}
		redirectHome(c)
		return nil
	})
	if !found {
		renderSetup(app, c, constants.ErrorCodeNoGame, "")
	}
}

func ExitHandler(app *models.App, c *gin.Context) {
	sessionID := session.GetOrCreateSession(app, c)
	session.DeleteGameSession(app, sessionID)
	redirectHome(c)
}

func GameStateHandler(app *models.App, c *gin.Context) {
	sessionID := session.GetOrCreateSession(app, c)
	found, _ := session.WithGame(app, sessionID, func(gs *models.GameSession) error {
		if wantsJSON(c) {
			c.JSON(http.StatusOK, BuildState(gs))
		} else {
			c.HTML(http.StatusOK, "game-content", gameData(app, c, gs, ""))
		}
		return nil
	})
	if !found {
		respondError(c, http.StatusNotFound, constants.ErrorCodeNoGame, nil)
	}
}

func LeaderboardHandler(app *models.App, c *gin.Context) {
	top, err := topPlayers(c.Request.Context(), app)
	if err != nil {
		respondError(c, http.StatusInternalServerError, constants.ErrorCodeInternal, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": top})
}

func HealthzHandler(app *models.App, c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(app.StartTime)

	app.LimiterMutex.RLock()
	limiterCount := len(app.LimiterMap)
	app.LimiterMutex.RUnlock()

	catalogSize := 0
	if app.Catalog != nil {
		if countries, err := app.Catalog.Countries(c.Request.Context()); err == nil {
			catalogSize = len(countries)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"env":             map[bool]string{true: "production", false: "development"}[app.IsProduction],
		"countries":       catalogSize,
		"active_sessions": session.ActiveSessions(app),
		"active_limiters": limiterCount,
		"memory_alloc_mb": m.Alloc / 1024 / 1024,
		"memory_sys_mb":   m.Sys / 1024 / 1024,
		"memory_gc_count": m.NumGC,
		"uptime":          util.FormatUptime(uptime),
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

// concludeIfOver writes the leaderboard once per game, and only for games
// played on the full pool.
func concludeIfOver(ctx context.Context, app *models.App, gs *models.GameSession) {
	if gs.Recorded || !game.IsGameOver(gs) {
		return
	}
	if !game.IsFullPool(gs) || app.Leaderboard == nil {
		gs.Recorded = true
		return
	}
	if err := app.Leaderboard.Record(ctx, gs.Players); err != nil {
		util.LogWarnCtx(ctx, "Game %s: leaderboard update failed: %v", gs.ID, err)
		return
	}
	gs.Recorded = true
}

// BuildState snapshots a game for the map widget.
func BuildState(gs *models.GameSession) StateView {
	r := gs.Round
	view := StateView{
		GameID:        gs.ID,
		CurrentPlayer: game.CurrentPlayer(gs).Name,
		Players:       gs.Players,
		TargetScore:   gs.TargetScore,
		Round:         r,
		Hints:         game.Hints(gs),
		HelpAvailable: game.HelpAvailable(gs),
		GameOver:      game.IsGameOver(gs),
		ShowLabels:    gs.ShowLabels,
	}
	if r.RoundOver {
		view.SolutionName = r.Target.Name
		if shape := game.TargetShape(gs); shape != nil {
			view.Solution = &point{Lat: shape.Centroid.Lat(), Lon: shape.Centroid.Lon()}
		}
	}
	if r.HelpVisible && len(r.MapGuesses) > 0 {
		last := r.MapGuesses[len(r.MapGuesses)-1]
		view.HelpCircle = &circle{Lat: last.Lat, Lon: last.Lon, RadiusKm: r.HelpRadiusKm}
	}
	if view.GameOver {
		view.Standings = game.Standings(gs)
	}
	return view
}

// ErrorCode maps engine errors to the codes the templates understand.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, models.ErrRoundOver):
		return constants.ErrorCodeRoundOver
	case errors.Is(err, models.ErrRoundInProgress):
		return constants.ErrorCodeRoundInProgress
	case errors.Is(err, models.ErrGameOver):
		return constants.ErrorCodeGameOver
	case errors.Is(err, models.ErrDuplicateGuess):
		return constants.ErrorCodeDuplicateGuess
	case errors.Is(err, models.ErrEmptyGuess):
		return constants.ErrorCodeEmptyGuess
	case errors.Is(err, models.ErrInvalidCoordinates):
		return constants.ErrorCodeInvalidCoordinates
	case errors.Is(err, models.ErrHelpUnavailable):
		return constants.ErrorCodeHelpUnavailable
	case errors.Is(err, models.ErrInvalidConfiguration):
		return constants.ErrorCodeInvalidConfiguration
	default:
		return constants.ErrorCodeInternal
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidCoordinates), errors.Is(err, models.ErrEmptyGuess):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrInvalidConfiguration):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusConflict
	}
}

func respondError(c *gin.Context, status int, code string, state any) {
	body := gin.H{"error": code}
	if state != nil {
		body["state"] = state
	}
	c.JSON(status, body)
}

func renderGame(app *models.App, c *gin.Context, gs *models.GameSession, errCode string) {
	setErrorTrigger(c, errCode)
	data := gameData(app, c, gs, errCode)
	if isHTMX(c) {
		c.HTML(http.StatusOK, "game-content", data)
		return
	}
	c.HTML(http.StatusOK, "index.html", data)
}

func gameData(app *models.App, c *gin.Context, gs *models.GameSession, errCode string) gin.H {
	view := BuildState(gs)
	data := gin.H{
		"title":      pageTitle,
		"game":       gs,
		"state":      view,
		"player":     game.CurrentPlayer(gs),
		"winners":    []*models.Player{},
		"error_code": errCode,
		"csrf_token": csrfToken(c),
	}
	if view.GameOver {
		data["winners"] = game.Winners(gs)
		if game.IsFullPool(gs) {
			data["leaderboard"], _ = topPlayers(c.Request.Context(), app)
		}
	}
	return data
}

func renderSetup(app *models.App, c *gin.Context, errCode, detail string) {
	setErrorTrigger(c, errCode)
	top, err := topPlayers(c.Request.Context(), app)
	if err != nil {
		util.LogWarnCtx(c.Request.Context(), "Leaderboard unavailable: %v", err)
	}
	c.HTML(http.StatusOK, "index.html", gin.H{
		"title":        pageTitle,
		"setup":        true,
		"leaderboard":  top,
		"error_code":   errCode,
		"error_detail": detail,
		"csrf_token":   csrfToken(c),
		"difficulties": []string{constants.DifficultyEasy, constants.DifficultyMedium, constants.DifficultyHard, constants.DifficultyAll},
	})
}

func topPlayers(ctx context.Context, app *models.App) ([]models.Standing, error) {
	if app.Leaderboard == nil {
		return nil, nil
	}
	return app.Leaderboard.Top(ctx, constants.LeaderboardTop)
}

func setErrorTrigger(c *gin.Context, errCode string) {
	if errCode == "" {
		return
	}
	payload := map[string]string{"server_error_code": errCode}
	if b, err := json.Marshal(payload); err == nil {
		c.Header("HX-Trigger", string(b))
	} else {
		util.LogWarn("Failed to marshal HX-Trigger payload: %v", err)
	}
}

func redirectHome(c *gin.Context) {
	if isHTMX(c) {
		c.Header("HX-Redirect", constants.RouteHome)
		c.Status(http.StatusNoContent)
		return
	}
	c.Redirect(http.StatusSeeOther, constants.RouteHome)
}

func csrfToken(c *gin.Context) string {
	if token := c.GetString("csrf_token"); token != "" {
		return token
	}
	token, _ := c.Cookie(constants.CSRFCookieName)
	return token
}

func isHTMX(c *gin.Context) bool {
	return c.GetHeader("HX-Request") == "true"
}

func wantsJSON(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "application/json") || c.Query("format") == "json"
}
