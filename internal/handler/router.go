package handler

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// TokenHeader carries the per-launch API token.
const TokenHeader = "X-TTBox-Token"

// Security restricts which callers may reach the API.
type Security struct {
	// Token must accompany every request. Websocket handshakes may pass it as
	// the token query parameter since browsers cannot set headers on them.
	Token string
	// AllowOrigin reports whether a browser origin may call the API.
	AllowOrigin func(origin string) bool
}

// NewRouter builds the API router
func NewRouter(invoke *InvokeHandler, ws *WSHandler, sec Security) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(sec.AllowOrigin))

	api := r.Group("/api")
	api.Use(tokenMiddleware(sec.Token))
	{
		api.POST("/invoke/:command", invoke.Invoke)
		api.GET("/commands", invoke.ListCommands)
		api.GET("/ws", ws.HandleWS)
	}
	return r
}

// corsMiddleware rejects browser requests from unknown origins and answers
// preflight requests for known ones. Requests without an Origin header come
// from non-browser clients and pass through.
func corsMiddleware(allow func(string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if allow == nil || !allow(origin) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error": "origin not allowed",
				})
				return
			}
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, "+TokenHeader)
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func tokenMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(TokenHeader)
		if got == "" && websocket.IsWebSocketUpgrade(c.Request) {
			got = c.Query("token")
		}
		if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing or invalid API token",
			})
			return
		}
		c.Next()
	}
}
