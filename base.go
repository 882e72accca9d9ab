package cachengine

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/unkn0wn-root/cachengine/internal/keyutil"
)

// Base is the shared engine core: configuration, key composition, TTL
// normalization, group versioning and hook dispatch. Engines embed it and
// call its helpers from their public methods.
//
// Construct with NewBase; versions may be nil for backends without a
// counter primitive (their ClearGroup must be overridden).
type Base struct {
	cfg      Config
	log      Logger
	hooks    Hooks
	versions VersionStore

	// sorted once at construction; group order must be deterministic so
	// the same token combination always hashes the same way
	groupNames  []string
	versionKeys []string
}

func NewBase(cfg Config, versions VersionStore) Base {
	cfg = cfg.withDefaults()
	b := Base{
		cfg:      cfg,
		log:      cfg.Logger,
		hooks:    cfg.Hooks,
		versions: versions,
	}
	if len(cfg.Groups) > 0 {
		b.groupNames = make([]string, len(cfg.Groups))
		copy(b.groupNames, cfg.Groups)
		sort.Strings(b.groupNames)
		b.versionKeys = make([]string, len(b.groupNames))
		for i, name := range b.groupNames {
			b.versionKeys[i] = cfg.Prefix + name
		}
	}
	return b
}

func (b *Base) Config() Config { return b.cfg }
func (b *Base) Log() Logger    { return b.log }

// GroupNames returns the configured groups in composition order.
func (b *Base) GroupNames() []string { return b.groupNames }

// TTL resolves a per-call ttl against the configured default duration.
// Zero selects the default; a non-positive result means "no expiry".
func (b *Base) TTL(ttl time.Duration) time.Duration {
	if ttl == 0 {
		ttl = b.cfg.Duration
	}
	if ttl < 0 {
		return NoExpiration
	}
	return ttl
}

// Key composes the backend-ready key for one logical key, consulting the
// current group-token state when groups are configured.
func (b *Base) Key(ctx context.Context, logical string) (string, error) {
	gp, err := b.groupPrefix(ctx)
	if err != nil {
		return "", err
	}
	return b.composeWith(gp, logical)
}

// Keys composes a whole batch against a single group-token snapshot so
// every key in one bulk call resolves under the same token combination.
// The result preserves input order.
func (b *Base) Keys(ctx context.Context, logicals []string) ([]string, error) {
	gp, err := b.groupPrefix(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(logicals))
	for i, l := range logicals {
		k, err := b.composeWith(gp, l)
		if err != nil {
			return nil, err
		}
		out[i] = k
	}
	return out, nil
}

func (b *Base) composeWith(groupPrefix, logical string) (string, error) {
	if strings.TrimSpace(logical) == "" {
		return "", ErrInvalidKey
	}
	k := keyutil.Sanitize(logical)
	if groupPrefix == "" {
		return b.cfg.Prefix + k, nil
	}
	return b.cfg.Prefix + groupPrefix + "_" + k, nil
}

// Groups returns the current "<name><version>" token for each configured
// group, lazily initializing absent tokens to 1. Racing initializers both
// writing 1 is a benign, idempotent outcome; no locking on purpose.
func (b *Base) Groups(ctx context.Context) ([]string, error) {
	if b.versions == nil || len(b.groupNames) == 0 {
		return nil, nil
	}
	loaded, err := b.versions.LoadVersions(ctx, b.versionKeys)
	if err != nil {
		return nil, err
	}
	tokens := make([]string, len(b.groupNames))
	for i, name := range b.groupNames {
		v := loaded[b.versionKeys[i]]
		if v <= 0 {
			v = 1
			if err := b.versions.StoreVersion(ctx, b.versionKeys[i], 1); err != nil {
				return nil, err
			}
		}
		tokens[i] = name + strconv.FormatInt(v, 10)
	}
	return tokens, nil
}

func (b *Base) groupPrefix(ctx context.Context) (string, error) {
	tokens, err := b.Groups(ctx)
	if err != nil {
		return "", err
	}
	if len(tokens) == 0 {
		return "", nil
	}
	return keyutil.GroupHash(tokens), nil
}

// ClearGroup bumps the named group's version token. Old entries are not
// touched: they become unreachable under the new token combination and
// expire on their own TTL. O(1) in the group's size.
func (b *Base) ClearGroup(ctx context.Context, group string) (bool, error) {
	if b.versions == nil {
		return false, ErrUnsupported
	}
	b.hooks.Before(OpClearGroup, group, nil)
	_, err := b.versions.BumpVersion(ctx, b.cfg.Prefix+group)
	b.hooks.After(OpClearGroup, group, nil, err == nil)
	if err != nil {
		b.log.Error("group version bump failed", Fields{"group": group, "err": err})
		return false, err
	}
	return true, nil
}

// EmitBefore and EmitAfter dispatch the instrumentation hook pair. Engines
// call them exactly once around each user-facing operation, after key
// composition, so hooks always observe the composed key.
func (b *Base) EmitBefore(op Op, key string, value any) { b.hooks.Before(op, key, value) }

func (b *Base) EmitAfter(op Op, key string, value any, ok bool) {
	b.hooks.After(op, key, value, ok)
}
