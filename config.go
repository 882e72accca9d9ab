package cachengine

import (
	"time"

	"github.com/spf13/cast"
)

// NoExpiration as a per-call TTL stores the entry without expiry on
// backends that support it.
const NoExpiration time.Duration = -1

// Config is the backend-independent part of an engine's configuration.
// It is immutable after the engine has served its first request; changing
// Prefix or Groups requires constructing a new engine.
type Config struct {
	// Duration is the default TTL applied when Set is called with ttl == 0.
	// Zero means entries never expire.
	Duration time.Duration

	// Prefix is prepended to every composed key, isolating this engine's
	// entries inside a shared physical store.
	Prefix string

	// Groups are the named keyspace partitions this engine writes under.
	// The current version token of every group is folded into each
	// composed key.
	Groups []string

	// Logger defaults to NopLogger.
	Logger Logger

	// Hooks defaults to NopHooks.
	Hooks Hooks
}

func (c Config) withDefaults() Config {
	c.Logger = coalesce[Logger](c.Logger, NopLogger{})
	c.Hooks = coalesce[Hooks](c.Hooks, NopHooks{})
	return c
}

// ConfigFromMap builds a Config from a flat key/value map, the shape cache
// configurations arrive in from application config files. Recognized keys:
// "duration", "prefix", "groups". Unknown keys are ignored, not rejected -
// backend-specific keys are consumed by each engine's own FromMap.
func ConfigFromMap(m map[string]any) Config {
	var c Config
	for k, v := range m {
		switch k {
		case "duration":
			c.Duration = ToTTL(v)
		case "prefix":
			c.Prefix = cast.ToString(v)
		case "groups":
			c.Groups = cast.ToStringSlice(v)
		}
	}
	return c
}

// ToTTL normalizes a flat-config duration value. Numeric values are integer
// seconds; strings may be a Go duration expression ("2m30s") or a number of
// seconds. Non-positive results mean "no expiry". A string that parses as
// neither form coerces to 0 - the same "no expiry" meaning an absent
// duration key has; validate configuration upstream if that must be an
// error.
func ToTTL(v any) time.Duration {
	switch d := v.(type) {
	case time.Duration:
		return d
	case string:
		if parsed, err := time.ParseDuration(d); err == nil {
			return parsed
		}
		return time.Duration(cast.ToInt64(d)) * time.Second
	default:
		return time.Duration(cast.ToInt64(v)) * time.Second
	}
}
