package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/entitlepool/internal/owner/domain"
	"github.com/smallbiznis/entitlepool/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("owner.service"),
		repo:  p.Repo,
		genID: p.GenID,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Owner, error) {
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	key := strings.TrimSpace(req.Key)
	if key == "" {
		key = slug.Make(name)
	}
	if key == "" || strings.ContainsAny(key, " \t\r\n") {
		return nil, domain.ErrInvalidKey
	}

	now := time.Now().UTC()
	owner := &domain.Owner{
		ID:          s.genID.Generate(),
		Key:         key,
		DisplayName: name,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, s.db, owner); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrKeyTaken
		}
		return nil, err
	}

	s.log.Info("owner created", zap.String("owner_key", owner.Key), zap.String("owner_id", owner.ID.String()))
	return owner, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Owner, error) {
	return s.repo.List(ctx, s.db)
}

// LookupByKey returns nil without error when no owner carries key.
func (s *Service) LookupByKey(ctx context.Context, key string) (*domain.Owner, error) {
	return s.repo.FindByKey(ctx, s.db, key)
}

// LookupByID returns nil without error when no owner carries id.
func (s *Service) LookupByID(ctx context.Context, id snowflake.ID) (*domain.Owner, error) {
	return s.repo.FindByID(ctx, s.db, id)
}
