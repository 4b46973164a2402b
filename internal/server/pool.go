package server

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	ownerdomain "github.com/smallbiznis/entitlepool/internal/owner/domain"
	pooldomain "github.com/smallbiznis/entitlepool/internal/pool/domain"
)

type ownerRequest struct {
	Key string `json:"key"`
	ID  string `json:"id"`
}

type createPoolRequest struct {
	Owner                     *ownerRequest     `json:"owner"`
	ProductID                 string            `json:"product_id"`
	DerivedProductID          string            `json:"derived_product_id"`
	ProvidedProductIDs        []string          `json:"provided_product_ids"`
	DerivedProvidedProductIDs []string          `json:"derived_provided_product_ids"`
	Quantity                  int64             `json:"quantity"`
	StartDate                 time.Time         `json:"start_date"`
	EndDate                   time.Time         `json:"end_date"`
	ContractNumber            string            `json:"contract_number"`
	AccountNumber             string            `json:"account_number"`
	Attributes                map[string]string `json:"attributes"`
}

func (r createPoolRequest) pool() (*pooldomain.Pool, error) {
	pool := &pooldomain.Pool{
		ProductID:        strings.TrimSpace(r.ProductID),
		DerivedProductID: optionalString(r.DerivedProductID),
		Quantity:         r.Quantity,
		StartDate:        r.StartDate.UTC(),
		EndDate:          r.EndDate.UTC(),
		ContractNumber:   strings.TrimSpace(r.ContractNumber),
		AccountNumber:    strings.TrimSpace(r.AccountNumber),
	}

	if r.Owner != nil {
		owner := &ownerdomain.Owner{Key: strings.TrimSpace(r.Owner.Key)}
		if raw := strings.TrimSpace(r.Owner.ID); raw != "" {
			id, err := snowflake.ParseString(raw)
			if err != nil {
				return nil, newValidationError("owner.id", "invalid_owner_id", "invalid owner id")
			}
			owner.ID = id
		}
		pool.Owner = owner
	}

	if pool.StartDate.IsZero() {
		pool.StartDate = time.Now().UTC()
	}
	if pool.EndDate.IsZero() || pool.EndDate.Before(pool.StartDate) {
		return nil, newValidationError("end_date", "invalid_period", "end_date must not precede start_date")
	}

	for _, id := range r.ProvidedProductIDs {
		pool.ProvidedProducts = append(pool.ProvidedProducts, pooldomain.ProvidedProduct{ProductID: strings.TrimSpace(id)})
	}
	for _, id := range r.DerivedProvidedProductIDs {
		pool.DerivedProvidedProducts = append(pool.DerivedProvidedProducts, pooldomain.DerivedProvidedProduct{ProductID: strings.TrimSpace(id)})
	}
	for name, value := range r.Attributes {
		pool.SetAttribute(name, value)
	}

	return pool, nil
}

func (s *Server) CreatePool(c *gin.Context) {
	var req createPoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	pool, err := req.pool()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	created, err := s.poolSvc.Create(c.Request.Context(), pool)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": created})
}

func (s *Server) GetPool(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	pool, err := s.poolSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": pool})
}

func (s *Server) Entitle(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req pooldomain.EntitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ConsumerUUID = strings.TrimSpace(req.ConsumerUUID)
	req.ConsumerUsername = strings.TrimSpace(req.ConsumerUsername)

	ctx := c.Request.Context()
	limit, err := s.limiter.AllowConsumer(ctx, req.ConsumerUUID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !limit.Allowed {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(limit.RetryAfter.Seconds()))))
		AbortWithError(c, ErrRateLimited)
		return
	}

	release, err := s.limiter.LockPool(ctx, id.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer release()

	resp, err := s.poolSvc.Entitle(ctx, id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}
