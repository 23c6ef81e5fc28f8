package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// UserHandler serves the authenticated user's profile.
type UserHandler struct{}

// NewUserHandler creates a new UserHandler.
func NewUserHandler() *UserHandler {
	return &UserHandler{}
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	CreatedAt string `json:"createdAt"`
}

// Get handles GET /user - returns the caller's profile.
func (h *UserHandler) Get(c *gin.Context) {
	user := userFrom(c)

	c.JSON(http.StatusOK, UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		CreatedAt: user.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// RegisterRoutes registers the user routes on a router group that is
// already behind RequireIdentity.
func (h *UserHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/user", h.Get)
}
