package pool

import (
	"github.com/smallbiznis/entitlepool/internal/pool/repository"
	"github.com/smallbiznis/entitlepool/internal/pool/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pool.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
