package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/smallbiznis/entitlepool/internal/subscription/domain"
)

func (s *Server) CreateSubscription(c *gin.Context) {
	var req subscriptiondomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetSubscription(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	sub, err := s.subscriptionSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sub})
}

func (s *Server) RefreshSubscription(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	pools, err := s.subscriptionSvc.Refresh(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": pools})
}

func (s *Server) ListSubscriptionPools(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	pools, err := s.poolSvc.ListBySubscription(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": pools})
}
