package product

import (
	"github.com/smallbiznis/entitlepool/internal/product/catalog"
	"github.com/smallbiznis/entitlepool/internal/product/repository"
	"github.com/smallbiznis/entitlepool/internal/product/service"
	"go.uber.org/fx"
)

var Module = fx.Module("product.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(catalog.New),
)
