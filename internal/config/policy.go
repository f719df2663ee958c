package config

import (
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingPolicy holds tunable billing behavior. It is loaded from an
// optional billing.yml and can be reloaded without a restart.
type BillingPolicy struct {
	// DueSoonDays is the window before the due date in which a bill is
	// surfaced as due_soon.
	DueSoonDays int `mapstructure:"dueSoonDays"`
	// MarkerRetention bounds how long a pending payment marker may stay
	// unresolved before it is expired and treated as a failure.
	MarkerRetention time.Duration `mapstructure:"markerRetention"`
	// MinPartialAmount is the smallest accepted partial payment, in centavos.
	MinPartialAmount int64  `mapstructure:"minPartialAmount"`
	Currency         string `mapstructure:"currency"`
}

func DefaultBillingPolicy() BillingPolicy {
	return BillingPolicy{
		DueSoonDays:      3,
		MarkerRetention:  24 * time.Hour,
		MinPartialAmount: 100,
		Currency:         "PHP",
	}
}

type PolicyHolder struct {
	current atomic.Value // holds BillingPolicy
}

func NewPolicyHolder() (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/aquabill/config")
	v.AddConfigPath("/etc/aquabill")
	v.AddConfigPath(".")

	v.SetEnvPrefix("AQUABILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingPolicy()
	v.SetDefault("policy.dueSoonDays", defaults.DueSoonDays)
	v.SetDefault("policy.markerRetention", defaults.MarkerRetention)
	v.SetDefault("policy.minPartialAmount", defaults.MinPartialAmount)
	v.SetDefault("policy.currency", defaults.Currency)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	holder := &PolicyHolder{}
	if err := holder.reload(v); err != nil {
		return nil, err
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		if err := holder.reload(v); err != nil {
			log.Printf("billing policy reload failed: %v", err)
		}
	})
	v.WatchConfig()

	return holder, nil
}

func (h *PolicyHolder) reload(v *viper.Viper) error {
	var policy BillingPolicy
	if err := v.UnmarshalKey("policy", &policy); err != nil {
		return err
	}
	policy = sanitizePolicy(policy)
	h.current.Store(policy)
	return nil
}

func (h *PolicyHolder) Current() BillingPolicy {
	if h == nil {
		return DefaultBillingPolicy()
	}
	if policy, ok := h.current.Load().(BillingPolicy); ok {
		return policy
	}
	return DefaultBillingPolicy()
}

// Store replaces the active policy. Intended for tests.
func (h *PolicyHolder) Store(policy BillingPolicy) {
	h.current.Store(sanitizePolicy(policy))
}

func sanitizePolicy(policy BillingPolicy) BillingPolicy {
	defaults := DefaultBillingPolicy()
	if policy.DueSoonDays < 0 {
		policy.DueSoonDays = defaults.DueSoonDays
	}
	if policy.MarkerRetention <= 0 {
		policy.MarkerRetention = defaults.MarkerRetention
	}
	if policy.MinPartialAmount <= 0 {
		policy.MinPartialAmount = defaults.MinPartialAmount
	}
	if strings.TrimSpace(policy.Currency) == "" {
		policy.Currency = defaults.Currency
	}
	return policy
}
