package handlers_test

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"

	constants "github.com/CodeAndHammer/landludo/internal/constants"
	geo "github.com/CodeAndHammer/landludo/internal/geo"
	handlers "github.com/CodeAndHammer/landludo/internal/handlers"
	models "github.com/CodeAndHammer/landludo/internal/models"
)

type stubCatalog struct {
	countries []models.Country
	err       error
}

func (s stubCatalog) Countries(context.Context) ([]models.Country, error) {
	return s.countries, s.err
}

type stubLeaderboard struct {
	mu       sync.Mutex
	recorded [][]models.Player
}

func (s *stubLeaderboard) Record(_ context.Context, players []*models.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make([]models.Player, len(players))
	for i, p := range players {
		snapshot[i] = *p
	}
	s.recorded = append(s.recorded, snapshot)
	return nil
}

func (s *stubLeaderboard) Top(context.Context, int) ([]models.Standing, error) {
	return []models.Standing{{Rank: 1, Name: "Alice", Score: 5, Rounds: 1, Average: 5}}, nil
}

func germanyResolver() *geo.Resolver {
	r := geo.NewResolver()
	r.Add(&geo.Shape{
		Name: "Germany",
		Code: "DEU",
		Geometry: orb.Polygon{orb.Ring{
			{8.5, 50.5}, {9.5, 50.5}, {9.5, 51.5}, {8.5, 51.5}, {8.5, 50.5},
		}},
		Centroid: orb.Point{9.0, 51.0},
	})
	return r
}

func setupRouter(cat models.CountrySource, lb models.Leaderboard) (*gin.Engine, *models.App) {
	gin.SetMode(gin.TestMode)
	app := &models.App{
		Catalog:      cat,
		Shapes:       germanyResolver(),
		Leaderboard:  lb,
		HintOrder:    constants.DefaultHintOrder,
		HelpPolicy:   models.HelpPolicy{Cost: 1},
		GameSessions: make(map[string]*models.GameSession),
		LimiterMap:   make(map[string]*models.RateLimiterWithTime),
		StartTime:    time.Now(),
		CookieMaxAge: time.Hour,
		SessionTTL:   time.Hour,
	}

	tmpl := template.Must(template.New("index.html").Parse(
		`{{if .setup}}SETUP [{{.error_code}}]{{else}}GAME [{{.error_code}}] {{.state.Round.Message}}{{end}}`))
	template.Must(tmpl.New("game-content").Parse(`PARTIAL [{{.error_code}}] {{.state.Round.Message}}`))

	router := gin.New()
	router.SetHTMLTemplate(tmpl)
	router.GET(constants.RouteHome, func(c *gin.Context) { handlers.HomeHandler(app, c) })
	router.POST(constants.RouteNewGame, func(c *gin.Context) { handlers.NewGameHandler(app, c) })
	router.POST(constants.RouteGuess, func(c *gin.Context) { handlers.GuessHandler(app, c) })
	router.POST(constants.RouteGuessMap, func(c *gin.Context) { handlers.MapGuessHandler(app, c) })
	router.POST(constants.RouteHelp, func(c *gin.Context) { handlers.HelpHandler(app, c) })
	router.POST(constants.RouteNextRound, func(c *gin.Context) { handlers.NextRoundHandler(app, c) })
	router.POST(constants.RouteExit, func(c *gin.Context) { handlers.ExitHandler(app, c) })
	router.GET(constants.RouteGameState, func(c *gin.Context) { handlers.GameStateHandler(app, c) })
	router.GET(constants.RouteLeaderboard, func(c *gin.Context) { handlers.LeaderboardHandler(app, c) })
	router.GET(constants.RouteHealthz, func(c *gin.Context) { handlers.HealthzHandler(app, c) })
	return router, app
}

type client struct {
	t       *testing.T
	router  *gin.Engine
	cookies []*http.Cookie
}

func (cl *client) do(method, path string, form url.Values, headers map[string]string) *httptest.ResponseRecorder {
	cl.t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, c := range cl.cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	cl.router.ServeHTTP(w, req)
	if set := w.Result().Cookies(); len(set) > 0 {
		cl.cookies = set
	}
	return w
}

func germanyCatalog() stubCatalog {
	return stubCatalog{countries: []models.Country{{Name: "Germany", Code: "DEU", Population: 83000000}}}
}

func startGame(t *testing.T, cl *client, difficulty, target string) {
	t.Helper()
	w := cl.do(http.MethodPost, constants.RouteNewGame, url.Values{
		"players":    {"Alice"},
		"target":     {target},
		"difficulty": {difficulty},
	}, nil)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("new game status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestHomeShowsSetupWithoutGame(t *testing.T) {
	router, _ := setupRouter(germanyCatalog(), &stubLeaderboard{})
	cl := &client{t: t, router: router}
	w := cl.do(http.MethodGet, constants.RouteHome, nil, nil)
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Body.String(), "SETUP") {
		t.Errorf("GET / = %d %q", w.Code, w.Body.String())
	}
	if len(cl.cookies) == 0 {
		t.Error("session cookie not set")
	}
}

func TestNewGameInvalidConfiguration(t *testing.T) {
	router, app := setupRouter(stubCatalog{err: models.ErrInvalidConfiguration}, &stubLeaderboard{})
	cl := &client{t: t, router: router}
	w := cl.do(http.MethodPost, constants.RouteNewGame, url.Values{"players": {"Alice"}, "target": {"5"}}, nil)
	if !strings.Contains(w.Body.String(), "SETUP ["+constants.ErrorCodeInvalidConfiguration+"]") {
		t.Errorf("body = %q", w.Body.String())
	}
	if len(app.GameSessions) != 0 {
		t.Error("no game should be stored")
	}

	router, _ = setupRouter(germanyCatalog(), &stubLeaderboard{})
	cl = &client{t: t, router: router}
	w = cl.do(http.MethodPost, constants.RouteNewGame, url.Values{"players": {" , "}, "target": {"5"}}, nil)
	if !strings.Contains(w.Body.String(), constants.ErrorCodeInvalidConfiguration) {
		t.Errorf("empty roster body = %q", w.Body.String())
	}
}

func TestTextGuessFinishesGameAndRecordsOnce(t *testing.T) {
	lb := &stubLeaderboard{}
	router, _ := setupRouter(germanyCatalog(), lb)
	cl := &client{t: t, router: router}
	startGame(t, cl, constants.DifficultyAll, "5")

	w := cl.do(http.MethodPost, constants.RouteGuess, url.Values{"guess": {"  germany "}}, nil)
	if !strings.Contains(w.Body.String(), "Correct! +5 points.") {
		t.Fatalf("guess body = %q", w.Body.String())
	}

	w = cl.do(http.MethodPost, constants.RouteGuess, url.Values{"guess": {"Germany"}}, map[string]string{"HX-Request": "true"})
	if !strings.HasPrefix(w.Body.String(), "PARTIAL ["+constants.ErrorCodeRoundOver+"]") {
		t.Errorf("second guess body = %q", w.Body.String())
	}
	cl.do(http.MethodGet, constants.RouteHome, nil, nil)

	if len(lb.recorded) != 1 {
		t.Fatalf("leaderboard recorded %d times, want 1", len(lb.recorded))
	}
	if p := lb.recorded[0][0]; p.Name != "Alice" || p.Score != 5 || p.RoundsPlayed != 1 {
		t.Errorf("recorded player = %+v", p)
	}

	w = cl.do(http.MethodGet, constants.RouteGameState+"?format=json", nil, nil)
	var view handlers.StateView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if !view.GameOver || len(view.Standings) != 1 || view.SolutionName != "Germany" || view.Solution == nil {
		t.Errorf("state = %+v", view)
	}

	w = cl.do(http.MethodPost, constants.RouteNextRound, nil, nil)
	if !strings.Contains(w.Body.String(), "GAME ["+constants.ErrorCodeGameOver+"]") {
		t.Errorf("next round after game over = %q", w.Body.String())
	}
}

func TestLeaderboardSkippedOutsideFullPool(t *testing.T) {
	lb := &stubLeaderboard{}
	router, _ := setupRouter(germanyCatalog(), lb)
	cl := &client{t: t, router: router}
	startGame(t, cl, constants.DifficultyEasy, "5")
	cl.do(http.MethodPost, constants.RouteGuess, url.Values{"guess": {"Germany"}}, nil)
	if len(lb.recorded) != 0 {
		t.Errorf("easy games must not reach the leaderboard")
	}
}

func TestMapGuessAndHelp(t *testing.T) {
	router, _ := setupRouter(germanyCatalog(), &stubLeaderboard{})
	cl := &client{t: t, router: router}
	startGame(t, cl, constants.DifficultyEasy, "10")

	w := cl.do(http.MethodPost, constants.RouteHelp, nil, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("help before guessing = %d", w.Code)
	}

	w = cl.do(http.MethodPost, constants.RouteGuessMap, url.Values{"lat": {"60"}, "lon": {"9"}}, nil)
	var view handlers.StateView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.Outcome == nil || view.Outcome.Kind != models.OutcomeMiss || !view.HelpAvailable {
		t.Fatalf("miss view = %+v", view)
	}

	w = cl.do(http.MethodPost, constants.RouteHelp, nil, nil)
	view = handlers.StateView{}
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.HelpCircle == nil || view.HelpCircle.RadiusKm < 900 {
		t.Fatalf("help circle = %+v", view.HelpCircle)
	}

	w = cl.do(http.MethodPost, constants.RouteGuessMap, url.Values{"lat": {"51"}, "lon": {"9"}}, nil)
	view = handlers.StateView{}
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.Outcome == nil || view.Outcome.Kind != models.OutcomeHit || view.Outcome.Points != 3 {
		t.Errorf("hit after help = %+v", view.Outcome)
	}

	w = cl.do(http.MethodPost, constants.RouteGuessMap, url.Values{"lat": {"abc"}, "lon": {"9"}}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad coordinates status = %d", w.Code)
	}
}

func TestNextRoundAndExit(t *testing.T) {
	router, app := setupRouter(germanyCatalog(), &stubLeaderboard{})
	cl := &client{t: t, router: router}
	startGame(t, cl, constants.DifficultyEasy, "10")

	w := cl.do(http.MethodPost, constants.RouteNextRound, nil, map[string]string{"HX-Request": "true"})
	if !strings.Contains(w.Body.String(), constants.ErrorCodeRoundInProgress) {
		t.Errorf("next round mid-round = %q", w.Body.String())
	}
	cl.do(http.MethodPost, constants.RouteGuess, url.Values{"guess": {"Germany"}}, nil)
	w = cl.do(http.MethodPost, constants.RouteNextRound, nil, nil)
	if w.Code != http.StatusSeeOther {
		t.Errorf("next round status = %d", w.Code)
	}

	cl.do(http.MethodPost, constants.RouteExit, nil, nil)
	if len(app.GameSessions) != 0 {
		t.Error("exit should drop the game")
	}
	w = cl.do(http.MethodGet, constants.RouteGameState, nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("state after exit = %d", w.Code)
	}
}

func TestLeaderboardAndHealthz(t *testing.T) {
	router, _ := setupRouter(germanyCatalog(), &stubLeaderboard{})
	cl := &client{t: t, router: router}

	w := cl.do(http.MethodGet, constants.RouteLeaderboard, nil, nil)
	var body struct {
		Leaderboard []models.Standing `json:"leaderboard"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Leaderboard) != 1 || body.Leaderboard[0].Name != "Alice" {
		t.Errorf("leaderboard = %+v", body.Leaderboard)
	}

	w = cl.do(http.MethodGet, constants.RouteHealthz, nil, nil)
	var health map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health["status"] != "ok" || health["countries"] != float64(1) {
		t.Errorf("healthz = %v", health)
	}
}

func TestErrorCode(t *testing.T) {
	cases := map[error]string{
		nil:                            "",
		models.ErrRoundOver:            constants.ErrorCodeRoundOver,
		models.ErrDuplicateGuess:       constants.ErrorCodeDuplicateGuess,
		models.ErrHelpUnavailable:      constants.ErrorCodeHelpUnavailable,
		models.ErrInvalidConfiguration: constants.ErrorCodeInvalidConfiguration,
	}
	for err, want := range cases {
		if got := handlers.ErrorCode(err); got != want {
			t.Errorf("ErrorCode(%v) = %q, want %q", err, got, want)
		}
	}
}
