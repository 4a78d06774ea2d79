package session_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	constants "github.com/CodeAndHammer/landludo/internal/constants"
	models "github.com/CodeAndHammer/landludo/internal/models"
	session "github.com/CodeAndHammer/landludo/internal/session"
)

func testApp() *models.App {
	return &models.App{
		GameSessions: make(map[string]*models.GameSession),
		CookieMaxAge: time.Hour,
		SessionTTL:   time.Hour,
	}
}

func TestGetOrCreateSessionSetsCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	app := testApp()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	id := session.GetOrCreateSession(app, c)
	if len(id) < 10 {
		t.Fatalf("session id too short: %q", id)
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != constants.SessionCookieName || cookies[0].Value != id {
		t.Errorf("unexpected cookies: %+v", cookies)
	}

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.AddCookie(&http.Cookie{Name: constants.SessionCookieName, Value: id})
	if got := session.GetOrCreateSession(app, c); got != id {
		t.Errorf("existing session not reused: %q != %q", got, id)
	}
}

func TestSaveGetDelete(t *testing.T) {
	app := testApp()
	if session.GetGameSession(app, "missing") != nil {
		t.Fatal("expected nil for unknown session")
	}
	gs := &models.GameSession{ID: "g1"}
	session.SaveGameSession(app, "s1", gs)
	if got := session.GetGameSession(app, "s1"); got != gs || got.LastAccessTime.IsZero() {
		t.Fatalf("GetGameSession = %+v", got)
	}
	session.DeleteGameSession(app, "s1")
	if session.ActiveSessions(app) != 0 {
		t.Error("session not deleted")
	}
}

func TestWithGame(t *testing.T) {
	app := testApp()
	found, err := session.WithGame(app, "none", func(*models.GameSession) error { return nil })
	if found || err != nil {
		t.Errorf("WithGame on missing session = %v, %v", found, err)
	}

	session.SaveGameSession(app, "s1", &models.GameSession{ID: "g1"})
	boom := errors.New("boom")
	found, err = session.WithGame(app, "s1", func(gs *models.GameSession) error {
		if gs.ID != "g1" {
			t.Errorf("unexpected game %s", gs.ID)
		}
		return boom
	})
	if !found || !errors.Is(err, boom) {
		t.Errorf("WithGame = %v, %v", found, err)
	}
}

func TestCleanupExpiredSessions(t *testing.T) {
	app := testApp()
	session.SaveGameSession(app, "old", &models.GameSession{ID: "old", LastAccessTime: time.Now().Add(-2 * time.Hour)})
	session.SaveGameSession(app, "new", &models.GameSession{ID: "new", LastAccessTime: time.Now()})
	if removed := session.CleanupExpiredSessions(app); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if session.GetGameSession(app, "new") == nil {
		t.Error("fresh session should survive")
	}
}
