package factory

import (
	"strconv"
	"strings"

	"github.com/smallbiznis/entitlepool/internal/apperror"
	"github.com/smallbiznis/entitlepool/internal/config"
	"github.com/smallbiznis/entitlepool/internal/pool/domain"
)

const unlimitedToken = "unlimited"

// QuantityPolicy turns a requested quantity into a pool quantity.
// The result is either non-negative or domain.Unlimited.
type QuantityPolicy func(raw string) (int64, error)

// LenientQuantity coerces anything it cannot parse to 0 and never fails.
func LenientQuantity(raw string) (int64, error) {
	q, ok := parseQuantity(raw)
	if !ok {
		return 0, nil
	}
	return q, nil
}

// StrictQuantity rejects anything LenientQuantity would coerce.
func StrictQuantity(raw string) (int64, error) {
	q, ok := parseQuantity(raw)
	if !ok {
		return 0, apperror.BadRequest("Invalid pool quantity %q", raw)
	}
	return q, nil
}

// PolicyFor maps a configured policy name to its function.
func PolicyFor(name string) QuantityPolicy {
	if name == config.QuantityPolicyStrict {
		return StrictQuantity
	}
	return LenientQuantity
}

func parseQuantity(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, unlimitedToken) {
		return domain.Unlimited, true
	}
	q, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	if q < 0 && q != domain.Unlimited {
		return 0, false
	}
	return q, true
}

// FormatQuantity renders a pool quantity the way PolicyFor parses it.
func FormatQuantity(q int64) string {
	if q < 0 {
		return unlimitedToken
	}
	return strconv.FormatInt(q, 10)
}
