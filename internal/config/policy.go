package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	QuantityPolicyLenient = "lenient"
	QuantityPolicyStrict  = "strict"
)

// PoolPolicy tunes pool derivation without a redeploy.
type PoolPolicy struct {
	// QuantityPolicy selects how unparseable quantities are handled:
	// lenient coerces them to zero, strict rejects them.
	QuantityPolicy string
	// UserLicense enables carving user-restricted pools on entitlement.
	UserLicense bool
}

func DefaultPoolPolicy() PoolPolicy {
	return PoolPolicy{
		QuantityPolicy: QuantityPolicyLenient,
		UserLicense:    true,
	}
}

type PolicyHolder struct {
	current atomic.Value // holds PoolPolicy
}

// NewPolicyHolder loads pool.yml from cfg.PolicyPaths and watches it for changes.
// A missing file yields the defaults.
func NewPolicyHolder(cfg Config, log *zap.Logger) (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("pool")
	v.SetConfigType("yml")
	for _, path := range cfg.PolicyPaths {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix("ENTITLEPOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPoolPolicy()
	v.SetDefault("pool.quantity_policy", defaults.QuantityPolicy)
	v.SetDefault("pool.user_license", defaults.UserLicense)

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		found = false
	}

	policy, err := decodePolicy(v)
	if err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(policy)

	if found {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodePolicy(v)
			if err != nil {
				log.Warn("pool policy reload rejected", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("pool policy reloaded",
				zap.String("file", e.Name),
				zap.String("quantity_policy", updated.QuantityPolicy),
				zap.Bool("user_license", updated.UserLicense),
			)
		})
		v.WatchConfig()
	}

	return holder, nil
}

// NewStaticPolicyHolder returns a holder that never reloads.
func NewStaticPolicyHolder(policy PoolPolicy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func (h *PolicyHolder) Get() PoolPolicy {
	return h.current.Load().(PoolPolicy)
}

func decodePolicy(v *viper.Viper) (PoolPolicy, error) {
	policy := PoolPolicy{
		QuantityPolicy: strings.ToLower(strings.TrimSpace(v.GetString("pool.quantity_policy"))),
		UserLicense:    v.GetBool("pool.user_license"),
	}
	switch policy.QuantityPolicy {
	case QuantityPolicyLenient, QuantityPolicyStrict:
	default:
		return PoolPolicy{}, fmt.Errorf("pool.quantity_policy %q is not one of lenient, strict", policy.QuantityPolicy)
	}
	return policy, nil
}
