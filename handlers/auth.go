package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/Keeydi/LedgerMonitor-sub000/apperr"
	"github.com/Keeydi/LedgerMonitor-sub000/models"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Login handles POST /api/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	user, err := h.Users.ByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		respondError(c, err)
		return
	}
	if !user.Active {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID,
		"role": user.Role,
		"exp":  time.Now().Add(h.tokenLifetime()).Unix(),
	})

	tokenString, err := token.SignedString(h.JWTSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, AuthResponse{
		Token: tokenString,
		User:  *user,
	})
}

func (h *Handler) tokenLifetime() time.Duration {
	if h.JWTExpiration > 0 {
		return h.JWTExpiration
	}
	return 24 * time.Hour
}

// AuthMiddleware protects routes. Browsers cannot set headers on websocket
// upgrades, so a ?token= query parameter is accepted too.
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
				c.Abort()
				return
			}
			tokenString = parts[1]
		}
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			return h.JWTSecret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		if sub, _ := claims.GetSubject(); sub != "" {
			c.Set("userID", sub)
		}
		if role, ok := claims["role"].(string); ok {
			c.Set("role", role)
		}
		c.Next()
	}
}

// IngestAuth checks the shared token of the capture pipeline
func (h *Handler) IngestAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.IngestToken == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Capture ingestion over HTTP is disabled"})
			c.Abort()
			return
		}
		got := c.GetHeader("X-Ingest-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.IngestToken)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid ingest token"})
			c.Abort()
			return
		}
		c.Next()
	}
}
