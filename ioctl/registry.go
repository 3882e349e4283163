package ioctl

import (
	"context"
	"sync"

	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/gfxcore/config"
	"github.com/vkngwrapper/gfxcore/hw"
	"golang.org/x/exp/slog"
)

// HelperConstructor builds the helper a product override installs
type HelperConstructor func(flags config.Flags, logger *slog.Logger) Helper

type helperKey struct {
	product       hw.Product
	prelimVersion string
}

// Registry selects the ioctl helper for an opened device. Product overrides win over the prelim
// version the kernel reports. Helpers are stateless, so one is built per product and version and
// shared by every device that asks.
type Registry struct {
	flags  config.Flags
	logger *slog.Logger

	lock      sync.Mutex
	overrides *swiss.Map[hw.Product, HelperConstructor]
	helpers   *swiss.Map[helperKey, Helper]
}

func NewRegistry(flags config.Flags, logger *slog.Logger) *Registry {
	registry := &Registry{
		flags:     flags,
		logger:    config.DiscardLogger(logger),
		overrides: swiss.NewMap[hw.Product, HelperConstructor](4),
		helpers:   swiss.NewMap[helperKey, Helper](4),
	}
	registry.Register(hw.ProductDG1, NewDG1)
	return registry
}

// Register installs a product override, replacing any earlier one and any helper already built for
// the product
func (r *Registry) Register(product hw.Product, constructor HelperConstructor) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.overrides.Put(product, constructor)

	var stale []helperKey
	r.helpers.Iter(func(key helperKey, _ Helper) bool {
		if key.product == product {
			stale = append(stale, key)
		}
		return false
	})
	for _, key := range stale {
		r.helpers.Delete(key)
	}
}

// Get returns the helper for drm
func (r *Registry) Get(drm Drm) Helper {
	key := helperKey{product: drm.Product(), prelimVersion: drm.PrelimVersion()}

	r.lock.Lock()
	defer r.lock.Unlock()

	helper, ok := r.helpers.Get(key)
	if ok {
		return helper
	}

	helper = r.build(key)
	r.helpers.Put(key, helper)
	return helper
}

func (r *Registry) build(key helperKey) Helper {
	constructor, ok := r.overrides.Get(key.product)
	if ok {
		return constructor(r.flags, r.logger)
	}

	switch key.prelimVersion {
	case "":
		return NewUpstream(r.flags, r.logger)
	case PrelimVersion20:
		return NewPrelim20(r.flags, r.logger)
	}

	r.logger.LogAttrs(context.Background(), slog.LevelWarn, "unsupported prelim uAPI version, falling back to upstream",
		slog.String("version", key.prelimVersion),
		slog.String("product", key.product.String()),
	)
	return NewUpstream(r.flags, r.logger)
}
