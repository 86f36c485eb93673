package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/mindhaven/peerlink/internal/middleware"
)

// LoginRequest carries the upstream-verified identity to mint a token
// for. Credential checking happens before requests reach this service.
type LoginRequest struct {
	Identity string `json:"identity" binding:"required"`
}

// LoginResponse returns the signed token used by the API and the
// websocket handshake.
type LoginResponse struct {
	Token    string `json:"token"`
	Identity string `json:"identity"`
}

// Login mints the identity-bearing JWT consumed by the rest of the API.
func Login(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}

		claims := middleware.Claims{
			Identity: req.Identity,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
				IssuedAt:  jwt.NewNumericDate(time.Now()),
				NotBefore: jwt.NewNumericDate(time.Now()),
			},
		}

		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		tokenString, err := token.SignedString([]byte(jwtSecret))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to generate token",
			})
			return
		}

		c.JSON(http.StatusOK, LoginResponse{
			Token:    tokenString,
			Identity: req.Identity,
		})
	}
}
