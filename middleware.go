package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	constants "github.com/CodeAndHammer/landludo/internal/constants"
	models "github.com/CodeAndHammer/landludo/internal/models"
	util "github.com/CodeAndHammer/landludo/internal/util"
)

// Leaflet comes from unpkg, tiles from OpenStreetMap or Carto and flags from flagcdn.
var cspTemplate = "default-src 'self'; script-src 'self' https://cdn.jsdelivr.net https://unpkg.com 'unsafe-inline'; style-src 'self' https://cdn.jsdelivr.net https://unpkg.com https://fonts.bunny.net 'unsafe-inline'; font-src 'self' https://cdn.jsdelivr.net https://fonts.bunny.net; img-src 'self' data: https://*.tile.openstreetmap.org https://*.basemaps.cartocdn.com https://unpkg.com https://flagcdn.com https://upload.wikimedia.org; connect-src 'self'; object-src 'none'; base-uri 'self'; form-action 'self'; frame-ancestors 'none';"

func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		origin := scheme + "://" + c.Request.Host
		csp := strings.ReplaceAll(cspTemplate, "'self'", "'"+origin+"'")
		c.Header("Content-Security-Policy", csp)
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=63072000; includeSubDomains; preload")
		}
		c.Next()
	}
}

func getLimiter(app *models.App, key string) *rate.Limiter {
	app.LimiterMutex.Lock()
	defer app.LimiterMutex.Unlock()
	if entry, ok := app.LimiterMap[key]; ok {
		entry.LastAccess = time.Now()
		return entry.Limiter
	}

	if key == "" || key == "::1" {
		util.LogWarn("Rate limiter key is empty or loopback: %q", key)
	}
	rps := app.RateLimitRPS
	if rps <= 0 {
		rps = 1
	}
	lim := rate.NewLimiter(rate.Every(time.Second/time.Duration(rps)), app.RateLimitBurst)
	app.LimiterMap[key] = &models.RateLimiterWithTime{
		Limiter:    lim,
		LastAccess: time.Now(),
	}
	return lim
}

func rateLimitMiddleware(app *models.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if !getLimiter(app, key).Allow() {
			util.LogWarnCtx(c.Request.Context(), "Rate limit exceeded for %s on %s", key, c.Request.URL.Path)
			if c.GetHeader("HX-Request") == "true" {
				c.Header("HX-Trigger", "rate-limit-exceeded")
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests. Please slow down."})
			return
		}
		c.Next()
	}
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.Request.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(c.Request.Context(), constants.RequestIDKey, reqID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-Id", reqID)
		c.Next()
	}
}

// validateCSRFMiddleware accepts the token from the X-CSRF-Token header
// (htmx and the map's fetch calls) or from the form body.
func validateCSRFMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method == http.MethodPost || method == http.MethodPut || method == http.MethodDelete || method == http.MethodPatch {
			cookie, _ := c.Cookie(constants.CSRFCookieName)
			token := c.GetHeader("X-CSRF-Token")
			if token == "" {
				token = c.PostForm("csrf_token")
			}
			if token == "" || cookie == "" || token != cookie {
				util.LogWarnCtx(c.Request.Context(), "Rejected %s %s: invalid csrf token", method, c.Request.URL.Path)
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid csrf token"})
				return
			}
		}
		c.Next()
	}
}

func csrfMiddleware(app *models.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(constants.CSRFCookieName)
		if err != nil || len(token) < 8 {
			b := make([]byte, 32)
			if _, err := rand.Read(b); err == nil {
				token = fmt.Sprintf("%x", b)
				c.SetSameSite(http.SameSiteLaxMode)
				c.SetCookie(constants.CSRFCookieName, token, int(app.CookieMaxAge.Seconds()), "/", "", app.IsProduction, false)
			}
		}
		c.Set("csrf_token", token)
		c.Next()
	}
}

// cleanupStaleRateLimiters drops limiters idle for longer than the TTL and
// halves the map when it grows past maxLimiters.
func cleanupStaleRateLimiters(app *models.App, maxLimiters int) int {
	app.LimiterMutex.Lock()
	defer app.LimiterMutex.Unlock()

	cutoff := time.Now().Add(-app.RateLimiterTTL)
	removed := 0
	for key, entry := range app.LimiterMap {
		if entry.LastAccess.Before(cutoff) {
			delete(app.LimiterMap, key)
			removed++
		}
	}

	if len(app.LimiterMap) > maxLimiters {
		util.LogInfo("Rate limiter map too large (%d entries), performing emergency cleanup", len(app.LimiterMap))
		type limiterInfo struct {
			key        string
			lastAccess time.Time
		}
		limiters := make([]limiterInfo, 0, len(app.LimiterMap))
		for key, entry := range app.LimiterMap {
			limiters = append(limiters, limiterInfo{key: key, lastAccess: entry.LastAccess})
		}
		slices.SortFunc(limiters, func(a, b limiterInfo) int {
			return a.lastAccess.Compare(b.lastAccess)
		})
		for _, l := range limiters[:len(limiters)/2] {
			delete(app.LimiterMap, l.key)
			removed++
		}
	}

	if removed > 0 {
		util.LogInfo("Cleaned up %d stale rate limiter%s", removed, util.Plural(removed))
	}
	return removed
}
