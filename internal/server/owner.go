package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	ownerdomain "github.com/smallbiznis/entitlepool/internal/owner/domain"
)

func (s *Server) CreateOwner(c *gin.Context) {
	var req ownerdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	owner, err := s.ownerSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": owner})
}

func (s *Server) ListOwners(c *gin.Context) {
	owners, err := s.ownerSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": owners})
}

func (s *Server) GetOwner(c *gin.Context) {
	owner, err := s.ownerFromPath(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": owner})
}

func (s *Server) ownerFromPath(c *gin.Context) (*ownerdomain.Owner, error) {
	key := strings.TrimSpace(c.Param("key"))
	return s.resolver.ResolveOwner(c.Request.Context(), &ownerdomain.Owner{Key: key})
}
