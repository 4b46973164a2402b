package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/entitlepool/internal/apperror"
	ownerdomain "github.com/smallbiznis/entitlepool/internal/owner/domain"
	"github.com/smallbiznis/entitlepool/internal/product/domain"
	"github.com/smallbiznis/entitlepool/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxGraphDepth bounds how far provided and derived products are populated on lookup.
const maxGraphDepth = 3

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("product.service"),
		repo: p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, owner *ownerdomain.Owner, req domain.CreateRequest) (*domain.Product, error) {
	if owner == nil || owner.ID == 0 {
		return nil, apperror.BadRequest("No owner specified, or owner lacks identifying information")
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		return nil, domain.ErrInvalidID
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	multiplier := int64(1)
	if req.Multiplier != nil {
		multiplier = *req.Multiplier
	}
	if multiplier < 1 {
		return nil, domain.ErrInvalidMultiplier
	}

	provided := dedupe(req.ProvidedProductIDs)
	for _, providedID := range provided {
		if err := s.ensureExists(ctx, owner, providedID); err != nil {
			return nil, err
		}
	}

	var derivedID *string
	if req.DerivedProductID != nil && strings.TrimSpace(*req.DerivedProductID) != "" {
		value := strings.TrimSpace(*req.DerivedProductID)
		if err := s.ensureExists(ctx, owner, value); err != nil {
			return nil, err
		}
		derivedID = &value
	}

	attributes := make(map[string]string, len(req.Attributes))
	for k, v := range req.Attributes {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		attributes[k] = v
	}

	now := time.Now().UTC()
	p := &domain.Product{
		UUID:                uuid.NewString(),
		OwnerID:             owner.ID,
		ID:                  id,
		Name:                name,
		Multiplier:          multiplier,
		Attributes:          attributes,
		DependentProductIDs: dedupe(req.DependentProductIDs),
		ProvidedProductIDs:  provided,
		DerivedProductID:    derivedID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.repo.Insert(ctx, s.db, p); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateProduct
		}
		return nil, err
	}

	s.log.Info("product created",
		zap.String("owner_key", owner.Key),
		zap.String("product_id", p.ID),
		zap.String("product_uuid", p.UUID),
	)
	return s.populate(ctx, p, maxGraphDepth, map[string]bool{})
}

func (s *Service) List(ctx context.Context, owner *ownerdomain.Owner) ([]domain.Product, error) {
	if owner == nil || owner.ID == 0 {
		return nil, apperror.BadRequest("No owner specified, or owner lacks identifying information")
	}
	return s.repo.List(ctx, s.db, owner.ID)
}

// LookupByOwnerAndID returns nil without error when the owner has no such product.
func (s *Service) LookupByOwnerAndID(ctx context.Context, owner *ownerdomain.Owner, productID string) (*domain.Product, error) {
	p, err := s.repo.FindByOwnerAndID(ctx, s.db, owner.ID, productID)
	if err != nil || p == nil {
		return nil, err
	}
	return s.populate(ctx, p, maxGraphDepth, map[string]bool{})
}

// LookupByUUID returns nil without error when no product carries uuid.
func (s *Service) LookupByUUID(ctx context.Context, uuid string) (*domain.Product, error) {
	p, err := s.repo.FindByUUID(ctx, s.db, uuid)
	if err != nil || p == nil {
		return nil, err
	}
	return s.populate(ctx, p, maxGraphDepth, map[string]bool{})
}

func (s *Service) ensureExists(ctx context.Context, owner *ownerdomain.Owner, productID string) error {
	found, err := s.repo.FindByOwnerAndID(ctx, s.db, owner.ID, productID)
	if err != nil {
		return err
	}
	if found == nil {
		return apperror.NotFound("Unable to find a product with the ID %q for owner %q", productID, owner.Key)
	}
	return nil
}

// populate fills ProvidedProducts and DerivedProduct from the stored IDs.
// Products already on the current path are not expanded again.
func (s *Service) populate(ctx context.Context, p *domain.Product, depth int, path map[string]bool) (*domain.Product, error) {
	if depth == 0 || path[p.ID] {
		return p, nil
	}
	path[p.ID] = true
	defer delete(path, p.ID)

	provided := make([]*domain.Product, 0, len(p.ProvidedProductIDs))
	for _, id := range p.ProvidedProductIDs {
		child, err := s.repo.FindByOwnerAndID(ctx, s.db, p.OwnerID, id)
		if err != nil {
			return nil, err
		}
		if child == nil {
			s.log.Warn("provided product missing", zap.String("product_id", p.ID), zap.String("provided_product_id", id))
			continue
		}
		if child, err = s.populate(ctx, child, depth-1, path); err != nil {
			return nil, err
		}
		provided = append(provided, child)
	}
	p.ProvidedProducts = provided

	if p.DerivedProductID != nil {
		derived, err := s.repo.FindByOwnerAndID(ctx, s.db, p.OwnerID, *p.DerivedProductID)
		if err != nil {
			return nil, err
		}
		if derived != nil {
			if derived, err = s.populate(ctx, derived, depth-1, path); err != nil {
				return nil, err
			}
		}
		p.DerivedProduct = derived
	}
	return p, nil
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
