package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	productdomain "github.com/smallbiznis/entitlepool/internal/product/domain"
)

func (s *Server) CreateProduct(c *gin.Context) {
	owner, err := s.ownerFromPath(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req productdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	req.Name = strings.TrimSpace(req.Name)

	product, err := s.productSvc.Create(c.Request.Context(), owner, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": product})
}

func (s *Server) ListProducts(c *gin.Context) {
	owner, err := s.ownerFromPath(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	products, err := s.productSvc.List(c.Request.Context(), owner)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": products})
}

func (s *Server) GetProduct(c *gin.Context) {
	owner, err := s.ownerFromPath(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	product, err := s.resolver.ResolveProductID(c.Request.Context(), owner, strings.TrimSpace(c.Param("product_id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": product})
}

func (s *Server) GetProductByUUID(c *gin.Context) {
	product, err := s.productSvc.LookupByUUID(c.Request.Context(), strings.TrimSpace(c.Param("uuid")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if product == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": product})
}
