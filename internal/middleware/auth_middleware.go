package middleware

import (
	"fmt"
	"net/http"
	"os"
	"presencegate/internal/shared/apperror"
	"presencegate/internal/shared/contextutil"
	"presencegate/internal/shared/response"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// AuthMiddleware validates the bearer token and populates the request
// context with the authenticated identity. device_id is mandatory: every
// presence submission must be attributable to a concrete device.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found {
			tokenString = ""
		}

		if tokenString == "" {
			if cookie, err := c.Cookie("access_token"); err == nil {
				tokenString = cookie
			}
		}

		if tokenString == "" {
			response.Error(c, http.StatusUnauthorized, apperror.CodeUnauthorized, "Token not found", nil)
			c.Abort()
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return []byte(os.Getenv("JWT_SECRET")), nil
		})

		if err != nil || !token.Valid {
			message := "Invalid token"
			if err != nil && strings.Contains(err.Error(), "expired") {
				message = "Token expired"
			}
			response.Error(c, http.StatusUnauthorized, apperror.CodeUnauthorized, message, nil)
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			response.Error(c, http.StatusUnauthorized, apperror.CodeUnauthorized, "Invalid token claims", nil)
			c.Abort()
			return
		}

		userID, ok := claims["user_id"].(string)
		if !ok || userID == "" {
			response.Error(c, http.StatusUnauthorized, apperror.CodeUnauthorized, "User ID not found in token", nil)
			c.Abort()
			return
		}

		deviceID, ok := claims["device_id"].(string)
		if !ok || deviceID == "" {
			response.Error(c, http.StatusUnauthorized, apperror.CodeUnauthorized, "Device ID not found in token", nil)
			c.Abort()
			return
		}

		officeID, _ := claims["office_id"].(string)
		role, _ := claims["role"].(string)

		c.Set("user_id", userID)
		c.Set("device_id", deviceID)
		c.Set("office_id", officeID)
		c.Set("role", role)

		ctx := c.Request.Context()
		ctx = contextutil.WithUserID(ctx, userID)
		ctx = contextutil.WithDeviceID(ctx, deviceID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func RoleMiddleware(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole := c.GetString("role")
		if userRole == "" {
			response.Error(c, http.StatusForbidden, apperror.CodeForbidden, "Access denied", nil)
			c.Abort()
			return
		}

		for _, role := range allowedRoles {
			if userRole == role {
				c.Next()
				return
			}
		}

		response.Error(c, http.StatusForbidden, apperror.CodeForbidden, "Access denied", nil)
		c.Abort()
	}
}
