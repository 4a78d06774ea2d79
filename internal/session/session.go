package session

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	constants "github.com/CodeAndHammer/landludo/internal/constants"
	models "github.com/CodeAndHammer/landludo/internal/models"
	util "github.com/CodeAndHammer/landludo/internal/util"
)

func GetOrCreateSession(app *models.App, c *gin.Context) string {
	sessionID, err := c.Cookie(constants.SessionCookieName)
	if err != nil || len(sessionID) < 10 {
		sessionID = uuid.NewString()
		c.SetSameSite(http.SameSiteStrictMode)
		secure := app.IsProduction
		c.SetCookie(constants.SessionCookieName, sessionID, int(app.CookieMaxAge.Seconds()), "/", "", secure, true)
		util.LogInfo("Created new session: %s", sessionID)
	}
	return sessionID
}

// GetGameSession returns the game bound to sessionID, or nil when the
// browser has not started one yet.
func GetGameSession(app *models.App, sessionID string) *models.GameSession {
	app.SessionMutex.RLock()
	gs, exists := app.GameSessions[sessionID]
	app.SessionMutex.RUnlock()
	if !exists {
		return nil
	}
	gs.Mu.Lock()
	gs.LastAccessTime = time.Now()
	gs.Mu.Unlock()
	return gs
}

func SaveGameSession(app *models.App, sessionID string, gs *models.GameSession) {
	app.SessionMutex.Lock()
	app.GameSessions[sessionID] = gs
	app.SessionMutex.Unlock()
	util.LogInfo("Stored game %s for session: %s", gs.ID, sessionID)
}

func DeleteGameSession(app *models.App, sessionID string) {
	app.SessionMutex.Lock()
	delete(app.GameSessions, sessionID)
	app.SessionMutex.Unlock()
	util.LogInfo("Cleared game for session: %s", sessionID)
}

// WithGame runs fn while holding the game's lock so that actions from the
// same browser are applied one at a time.
func WithGame(app *models.App, sessionID string, fn func(gs *models.GameSession) error) (bool, error) {
	gs := GetGameSession(app, sessionID)
	if gs == nil {
		return false, nil
	}
	gs.Mu.Lock()
	defer gs.Mu.Unlock()
	return true, fn(gs)
}

func CleanupExpiredSessions(app *models.App) int {
	app.SessionMutex.Lock()
	defer app.SessionMutex.Unlock()

	cutoff := time.Now().Add(-app.SessionTTL)
	expiredCount := 0
	for sessionID, gs := range app.GameSessions {
		gs.Mu.Lock()
		stale := gs.LastAccessTime.Before(cutoff)
		gs.Mu.Unlock()
		if stale {
			delete(app.GameSessions, sessionID)
			expiredCount++
		}
	}

	if expiredCount > 0 {
		util.LogInfo("Cleaned up %d expired sessions", expiredCount)
	}
	return expiredCount
}

func ActiveSessions(app *models.App) int {
	app.SessionMutex.RLock()
	defer app.SessionMutex.RUnlock()
	return len(app.GameSessions)
}
