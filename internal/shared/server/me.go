package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cloudvault-backend/internal/shared/server/middleware"
	"cloudvault-backend/internal/shared/server/respond"
)

// registerMeRoutes attaches the /me endpoint.
func registerMeRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", meHandler)
}

func meHandler(c *gin.Context) {
	p, ok := middleware.PrincipalFromContext(c)
	if !ok {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid session", nil)
		return
	}

	response := gin.H{
		"userId": p.UserID,
		"scheme": string(p.Scheme),
	}
	if p.Email != "" {
		response["email"] = p.Email
	}
	if p.Name != "" {
		response["name"] = p.Name
	}
	if p.Picture != "" {
		response["picture"] = p.Picture
	}

	respond.JSON(c, http.StatusOK, response)
}
