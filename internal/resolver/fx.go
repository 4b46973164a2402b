package resolver

import (
	ownerdomain "github.com/smallbiznis/entitlepool/internal/owner/domain"
	productdomain "github.com/smallbiznis/entitlepool/internal/product/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("resolver",
	fx.Provide(
		func(s ownerdomain.Service) OwnerLookup { return s },
		func(s productdomain.Service) ProductLookup { return s },
		New,
	),
)
