// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pubgrub

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sdboyer/constext"
	"github.com/sirupsen/logrus"
)

// containerGateway provides the solver a synchronous, cached view over the
// asynchronous ContainerProvider. At most one fetch per package is in
// flight; concurrent callers for the same package wait on the result.
// Prefetches run in the background and publish into the same cache.
type containerGateway struct {
	provider   ContainerProvider
	skipUpdate bool
	incomplete bool
	lg         *logrus.Logger

	// lifetime bounds all background work; it is canceled when the owning
	// solver is closed.
	lifetime context.Context

	mu       sync.Mutex
	cond     *sync.Cond
	fetched  map[PackageReference]containerResult
	inflight map[PackageReference]struct{}

	cache *boltCache
}

type containerResult struct {
	c   Container
	err error
}

// containerUnavailableError marks a package the gateway declined to fetch
// because the solver is running against cached data only.
type containerUnavailableError struct {
	ref PackageReference
}

func (e *containerUnavailableError) Error() string {
	return "container for " + e.ref.String() + " is not locally available"
}

func newContainerGateway(lifetime context.Context, provider ContainerProvider, cache *boltCache, skipUpdate, incomplete bool, lg *logrus.Logger) *containerGateway {
	g := &containerGateway{
		provider:   provider,
		skipUpdate: skipUpdate,
		incomplete: incomplete,
		lg:         lg,
		lifetime:   lifetime,
		fetched:    make(map[PackageReference]containerResult),
		inflight:   make(map[PackageReference]struct{}),
		cache:      cache,
	}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// get returns the container for ref, fetching it if needed. Calls for a
// package already being fetched block until that fetch publishes.
func (g *containerGateway) get(ctx context.Context, ref PackageReference) (Container, error) {
	g.mu.Lock()
	for {
		if res, ok := g.fetched[ref]; ok {
			g.mu.Unlock()
			return res.c, res.err
		}
		if _, in := g.inflight[ref]; !in {
			break
		}
		g.cond.Wait()
	}

	if c, ok := g.cachedContainerLocked(ref); ok {
		g.fetched[ref] = containerResult{c: c}
		g.mu.Unlock()
		return c, nil
	}
	if g.incomplete {
		g.mu.Unlock()
		return nil, &containerUnavailableError{ref: ref}
	}

	g.inflight[ref] = struct{}{}
	g.mu.Unlock()

	cctx, cancel := constext.Cons(ctx, g.lifetime)
	defer cancel()
	c, err := g.fetch(cctx, ref)
	g.publish(ref, c, err)
	return c, err
}

// prefetch begins background fetches for any of refs not already fetched or
// in flight. Completions publish into the cache and wake waiters.
func (g *containerGateway) prefetch(refs []PackageReference) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, ref := range refs {
		if _, ok := g.fetched[ref]; ok {
			continue
		}
		if _, in := g.inflight[ref]; in {
			continue
		}
		if g.incomplete {
			continue
		}
		g.inflight[ref] = struct{}{}
		go func(ref PackageReference) {
			c, err := g.fetch(g.lifetime, ref)
			g.publish(ref, c, err)
		}(ref)
	}
}

func (g *containerGateway) publish(ref PackageReference, c Container, err error) {
	g.mu.Lock()
	g.fetched[ref] = containerResult{c: c, err: err}
	delete(g.inflight, ref)
	g.cond.Broadcast()
	g.mu.Unlock()
}

// fetch awaits the provider's asynchronous completion. Provider errors fall
// back to cached data when any exists.
func (g *containerGateway) fetch(ctx context.Context, ref PackageReference) (Container, error) {
	type result struct {
		c   Container
		err error
	}
	ch := make(chan result, 1)
	g.provider.GetContainer(ctx, ref, g.skipUpdate, func(c Container, err error) {
		ch <- result{c: c, err: err}
	})

	var res result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "fetching container for %s", ref)
	}

	if res.err != nil {
		if c, ok := g.cachedContainer(ref); ok {
			if g.lg.Level >= logrus.WarnLevel {
				g.lg.WithFields(logrus.Fields{
					"package": ref.String(),
					"error":   res.err,
				}).Warn("container fetch failed; using cached data")
			}
			return c, nil
		}
		return nil, errors.Wrapf(res.err, "fetching container for %s", ref)
	}
	return g.wrapCaching(res.c), nil
}

// cachedContainerLocked consults the on-disk cache under the gateway lock.
// Cached data is authoritative when updates are being skipped, or when the
// gateway is refusing fresh fetches altogether.
func (g *containerGateway) cachedContainerLocked(ref PackageReference) (Container, bool) {
	if g.cache == nil || !(g.skipUpdate || g.incomplete) {
		return nil, false
	}
	return g.cache.container(ref)
}

func (g *containerGateway) cachedContainer(ref PackageReference) (Container, bool) {
	if g.cache == nil {
		return nil, false
	}
	return g.cache.container(ref)
}

// wrapCaching arranges for data read through c to be written through to the
// on-disk cache.
func (g *containerGateway) wrapCaching(c Container) Container {
	if g.cache == nil || c == nil {
		return c
	}
	return newCachingContainer(c, g.cache)
}
