package main

import (
	"context"
	"html/template"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	cachecontrol "go.eigsys.de/gin-cachecontrol/v2"
	"golang.org/x/sync/errgroup"

	ginGzip "github.com/gin-contrib/gzip"

	"github.com/gin-gonic/gin"

	catalog "github.com/CodeAndHammer/landludo/internal/catalog"
	constants "github.com/CodeAndHammer/landludo/internal/constants"
	game "github.com/CodeAndHammer/landludo/internal/game"
	geo "github.com/CodeAndHammer/landludo/internal/geo"
	handlers "github.com/CodeAndHammer/landludo/internal/handlers"
	leaderboard "github.com/CodeAndHammer/landludo/internal/leaderboard"
	models "github.com/CodeAndHammer/landludo/internal/models"
	session "github.com/CodeAndHammer/landludo/internal/session"
	util "github.com/CodeAndHammer/landludo/internal/util"
)

const maxRateLimiters = 50000

func main() {
	_ = godotenv.Load()

	isProduction := os.Getenv("GIN_MODE") == "release" || os.Getenv("ENV") == "production"
	util.SetupLogging(isProduction, util.GetEnvString("LOG_LEVEL", "info"))
	util.LogInfo("Starting Landludo in %s mode", map[bool]string{true: "production", false: "development"}[isProduction])

	hintOrder, err := game.ParseHintOrder(util.GetEnvList("HINT_ORDER", constants.DefaultHintOrder))
	if err != nil {
		util.LogWarn("Invalid HINT_ORDER, using %v: %v", hintOrder, err)
	}

	countries := catalog.NewService(
		catalog.NewClient(
			util.GetEnvString("CATALOG_URL", catalog.DefaultURL),
			os.Getenv("CATALOG_FILE"),
			util.GetEnvDuration("CATALOG_TIMEOUT", 10*time.Second),
		),
		util.GetEnvDuration("CATALOG_TTL", 24*time.Hour),
	)

	shapes, err := loadStartupData(countries, util.GetEnvString("GEODATA_PATH", "data/countries.geojson"))
	if err != nil {
		util.LogFatal("Failed to load geodata: %v", err)
	}

	board, err := openLeaderboard()
	if err != nil {
		util.LogFatal("Failed to open leaderboard: %v", err)
	}
	defer func() {
		if err := board.Close(); err != nil {
			util.LogWarn("Closing leaderboard: %v", err)
		}
	}()

	app := &models.App{
		Catalog:     countries,
		Shapes:      shapes,
		Leaderboard: board,
		HintOrder:   hintOrder,
		HelpPolicy: models.HelpPolicy{
			Cost:  util.GetEnvInt("HELP_COST", 1),
			Stack: util.GetEnvBool("HELP_STACK", false),
		},
		GameSessions:   make(map[string]*models.GameSession),
		IsProduction:   isProduction,
		StartTime:      time.Now(),
		CookieMaxAge:   util.GetEnvDuration("COOKIE_MAX_AGE", 2*time.Hour),
		StaticCacheAge: util.GetEnvDuration("STATIC_CACHE_AGE", 5*time.Minute),
		RateLimitRPS:   util.GetEnvInt("RATE_LIMIT_RPS", 5),
		RateLimitBurst: util.GetEnvInt("RATE_LIMIT_BURST", 10),
		RateLimiterTTL: util.GetEnvDuration("RATE_LIMITER_TTL", 1*time.Hour),
		SessionTTL:     util.GetEnvDuration("SESSION_TTL", 3*time.Hour),
		LimiterMap:     make(map[string]*models.RateLimiterWithTime),
	}

	router := gin.Default()

	router.Use(requestIDMiddleware())
	router.Use(securityHeadersMiddleware())

	router.Use(csrfMiddleware(app))
	router.Use(validateCSRFMiddleware())

	router.Use(ginGzip.Gzip(ginGzip.DefaultCompression,
		ginGzip.WithExcludedExtensions([]string{".svg", ".ico", ".png", ".jpg", ".jpeg", ".gif", ".geojson"}),
		ginGzip.WithExcludedPaths([]string{"/static/fonts"})))

	if err := router.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		util.LogWarn("Failed to set trusted proxies: %v", err)
	}

	router.Use(func(c *gin.Context) {
		applyCacheHeaders(app, c)
	})

	funcMap := template.FuncMap{
		"hasPrefix": strings.HasPrefix,
		"plural":    util.Plural,
		"add":       func(a, b int) int { return a + b },
	}

	var baseTplDir string
	if isProduction && util.DirExists("dist") {
		util.LogInfo("Serving assets from dist/ directory")
		baseTplDir = filepath.ToSlash(filepath.Join("dist", "templates"))
		router.Static("/static", "./dist/static")
	} else {
		util.LogInfo("Serving development assets from source directories")
		baseTplDir = "templates"
		router.Static("/static", "./static")
	}

	rootPattern := filepath.ToSlash(filepath.Join(baseTplDir, "*.html"))
	partialsPattern := filepath.ToSlash(filepath.Join(baseTplDir, "partials", "*.html"))

	master := template.New("").Funcs(funcMap)
	if _, err := master.ParseGlob(rootPattern); err != nil {
		util.LogFatal("Failed to parse root templates: %v", err)
	}
	if _, err := master.ParseGlob(partialsPattern); err != nil {
		util.LogFatal("Failed to parse partial templates: %v", err)
	}
	router.SetHTMLTemplate(master)

	registerRoutes(router, app)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCleanupRoutines(ctx, app)
	startServer(ctx, router)
}

func registerRoutes(router *gin.Engine, app *models.App) {
	limited := rateLimitMiddleware(app)
	with := func(h func(*models.App, *gin.Context)) gin.HandlerFunc {
		return func(c *gin.Context) { h(app, c) }
	}

	router.GET(constants.RouteHome, with(handlers.HomeHandler))
	router.POST(constants.RouteNewGame, limited, with(handlers.NewGameHandler))
	router.POST(constants.RouteGuess, limited, with(handlers.GuessHandler))
	router.POST(constants.RouteGuessMap, limited, with(handlers.MapGuessHandler))
	router.POST(constants.RouteHelp, limited, with(handlers.HelpHandler))
	router.POST(constants.RouteNextRound, limited, with(handlers.NextRoundHandler))
	router.POST(constants.RouteExit, limited, with(handlers.ExitHandler))
	router.GET(constants.RouteGameState, with(handlers.GameStateHandler))
	router.GET(constants.RouteLeaderboard, with(handlers.LeaderboardHandler))
	router.GET(constants.RouteHealthz, with(handlers.HealthzHandler))
}

// loadStartupData warms the country catalog and parses the border file in
// parallel. A catalog that cannot be reached yet is only a warning; the
// service retries on the first game.
func loadStartupData(countries *catalog.Service, geodataPath string) (*geo.Resolver, error) {
	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		list, err := countries.Countries(ctx)
		if err != nil {
			util.LogWarn("Country catalog unavailable at startup: %v", err)
			return nil
		}
		util.LogInfo("Loaded %d countries", len(list))
		return nil
	})

	var shapes *geo.Resolver
	g.Go(func() error {
		var err error
		shapes, err = geo.LoadResolver(geodataPath)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return shapes, nil
}

func openLeaderboard() (*leaderboard.Service, error) {
	if dsn := os.Getenv("LEADERBOARD_DSN"); dsn != "" {
		store, err := leaderboard.OpenSQLite(dsn)
		if err != nil {
			return nil, err
		}
		util.LogInfo("Leaderboard stored in SQLite at %s", dsn)
		return leaderboard.NewService(store), nil
	}
	path := util.GetEnvString("LEADERBOARD_PATH", "data/leaderboard.json")
	util.LogInfo("Leaderboard stored in %s", path)
	return leaderboard.NewService(leaderboard.NewFileStore(path)), nil
}

func startServer(ctx context.Context, router *gin.Engine) {
	port := util.GetEnvString("PORT", "8080")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		<-ctx.Done()
		util.LogInfo("Shutdown signal received, shutting down server gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			util.LogWarn("HTTP server Shutdown: %v", err)
		}
		close(idleConnsClosed)
	}()

	util.LogInfo("Server starting on http://localhost:%s", port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		util.LogFatal("Server failed to start: %v", err)
	}
	<-idleConnsClosed
	util.LogInfo("Server shutdown complete")
}

func applyCacheHeaders(app *models.App, c *gin.Context) {
	if app.IsProduction && strings.HasPrefix(c.Request.URL.Path, "/static/") {
		cachecontrol.New(cachecontrol.Config{
			Public: true,
			MaxAge: cachecontrol.Duration(app.StaticCacheAge),
		})(c)
		c.Header("Vary", "Accept-Encoding")
		return
	}
	cachecontrol.New(cachecontrol.Config{
		NoStore:        true,
		NoCache:        true,
		MustRevalidate: true,
	})(c)
}

func startCleanupRoutines(ctx context.Context, app *models.App) {
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				session.CleanupExpiredSessions(app)
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cleanupStaleRateLimiters(app, maxRateLimiters)
			}
		}
	}()

	util.LogInfo("Started cleanup routines for sessions and rate limiters")
}
