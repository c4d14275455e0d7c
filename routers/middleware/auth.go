package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/fintrackhq/fintrack/config"
	u "github.com/fintrackhq/fintrack/utils"
)

var authConf = config.AuthConfig()

// JWTMiddleware validates the bearer token and stores the authenticated
// user id on the request context under "user_id".
func JWTMiddleware(ctx *gin.Context) {
	authorization := ctx.GetHeader("Authorization")
	if !strings.HasPrefix(authorization, "Bearer ") {
		u.APIResponse(ctx, http.StatusUnauthorized, "error", "Authentication required", nil)
		ctx.Abort()
		return
	}

	tokenString := strings.TrimPrefix(authorization, "Bearer ")
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(authConf.Secret), nil
	})
	if err != nil || !token.Valid {
		u.APIResponse(ctx, http.StatusUnauthorized, "error", "Invalid or expired token", nil)
		ctx.Abort()
		return
	}

	subject, err := token.Claims.GetSubject()
	if err != nil {
		u.APIResponse(ctx, http.StatusUnauthorized, "error", "Invalid token claims", nil)
		ctx.Abort()
		return
	}
	userID, err := uuid.Parse(subject)
	if err != nil {
		u.APIResponse(ctx, http.StatusUnauthorized, "error", "Invalid token claims", nil)
		ctx.Abort()
		return
	}

	ctx.Set("user_id", userID)
	ctx.Next()
}
