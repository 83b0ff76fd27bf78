package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// adminMiddleware пропускает только запросы с действующим токеном
// администратора в заголовке Authorization.
func (rs *RestServer) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rs.adminSecret == "" {
			c.JSON(http.StatusServiceUnavailable, GenericResponse{
				Success: false,
				Message: "admin API is disabled",
			})
			c.Abort()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, GenericResponse{
				Success: false,
				Message: "missing authorization token",
			})
			c.Abort()
			return
		}

		// Формат "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, GenericResponse{
				Success: false,
				Message: "malformed authorization header",
			})
			c.Abort()
			return
		}

		claims, err := ParseAdminToken(rs.adminSecret, parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, GenericResponse{
				Success: false,
				Message: "invalid token",
			})
			c.Abort()
			return
		}
		if !claims.Admin {
			c.JSON(http.StatusForbidden, GenericResponse{
				Success: false,
				Message: "admin rights required",
			})
			c.Abort()
			return
		}

		c.Set("admin_name", claims.Name)
		c.Next()
	}
}
