// Package inspect implements spec §6.B's gated read boundary: a bounded,
// authenticated view over a live WarpState for debug/viewer tooling. It
// has no write surface and no influence on any canonical computation —
// every method is a pass-through read over graph.GraphView, with an API
// key check in front and a bounded read-through cache behind.
package inspect

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/flyingrobots/echo/pkg/graph"
	"github.com/flyingrobots/echo/pkg/ids"
	"golang.org/x/crypto/bcrypt"
)

// ErrUnauthorized is returned by any API method when the supplied key
// does not match the configured hash.
var ErrUnauthorized = errors.New("inspect: unauthorized")

// ErrLimitExceeded is returned when a caller requests more rows than the
// service's configured MaxLimit allows — spec §6.B requires every
// enumeration to reject unbounded iteration.
var ErrLimitExceeded = errors.New("inspect: limit exceeds configured maximum")

// WarpLookup resolves a WarpId to the GraphView to read from. Engine
// satisfies this by wrapping engine.Engine's internal WarpState; API
// keeps no reference to engine.Engine to avoid importing the write path
// into the read boundary.
type WarpLookup func(ids.WarpId) (graph.GraphView, bool)

// Config authorizes and bounds one API instance.
type Config struct {
	// APIKeyHash is a bcrypt hash of the single accepted API key. An
	// empty hash rejects every request — inspection is opt-in.
	APIKeyHash string
	// MaxLimit bounds every limit-accepting call.
	MaxLimit int
	// CacheMaxCost bounds the ristretto cache's tracked cost (roughly
	// bytes); 0 disables caching.
	CacheMaxCost int64
}

// API is the gated Inspection API. It is safe for concurrent use.
type API struct {
	cfg    Config
	lookup WarpLookup
	cache  *ristretto.Cache[string, any]
}

// New constructs an API over lookup. A nil cache is used (cache always
// misses) when cfg.CacheMaxCost <= 0.
func New(cfg Config, lookup WarpLookup) (*API, error) {
	api := &API{cfg: cfg, lookup: lookup}
	if cfg.CacheMaxCost > 0 {
		c, err := ristretto.NewCache(&ristretto.Config[string, any]{
			NumCounters: cfg.CacheMaxCost * 10,
			MaxCost:     cfg.CacheMaxCost,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("inspect: creating cache: %w", err)
		}
		api.cache = c
	}
	return api, nil
}

// Authorize checks apiKey against the configured hash.
func (a *API) Authorize(apiKey string) error {
	if a.cfg.APIKeyHash == "" {
		return ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.cfg.APIKeyHash), []byte(apiKey)); err != nil {
		return ErrUnauthorized
	}
	return nil
}

// HashAPIKey is the companion to Authorize: operators run this once at
// setup time to produce the APIKeyHash a Config carries. Never call this
// per-request — bcrypt's cost is intentionally high.
func HashAPIKey(apiKey string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("inspect: hashing api key: %w", err)
	}
	return string(hash), nil
}

// ReadNode is spec §6.B's read_node.
func (a *API) ReadNode(ctx context.Context, apiKey string, warpID ids.WarpId, nodeID ids.NodeId) (graph.NodeRecord, bool, error) {
	if err := a.Authorize(apiKey); err != nil {
		return graph.NodeRecord{}, false, err
	}
	view, ok := a.lookup(warpID)
	if !ok {
		return graph.NodeRecord{}, false, nil
	}

	key := cacheKey("node", warpID, nodeID)
	if v, ok := a.cacheGet(key); ok {
		rec, ok := v.(graph.NodeRecord)
		return rec, ok, nil
	}

	rec, ok := view.Node(nodeID)
	if ok {
		a.cacheSet(key, rec, 1)
	}
	return rec, ok, nil
}

// ReadEdgesFrom is spec §6.B's read_edges_from: ascending EdgeId order,
// bounded by limit.
func (a *API) ReadEdgesFrom(ctx context.Context, apiKey string, warpID ids.WarpId, nodeID ids.NodeId, limit int) ([]graph.EdgeRecord, error) {
	if err := a.Authorize(apiKey); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > a.cfg.MaxLimit {
		return nil, ErrLimitExceeded
	}
	view, ok := a.lookup(warpID)
	if !ok {
		return nil, nil
	}

	out := make([]graph.EdgeRecord, 0, limit)
	for e := range view.EdgesFrom(nodeID) {
		if len(out) >= limit {
			break
		}
		out = append(out, e)
	}
	return out, nil
}

// ReadAttachment is spec §6.B's read_attachment.
func (a *API) ReadAttachment(ctx context.Context, apiKey string, warpID ids.WarpId, owner ids.ID, key string) (graph.AttachmentValue, bool, error) {
	if err := a.Authorize(apiKey); err != nil {
		return graph.AttachmentValue{}, false, err
	}
	view, ok := a.lookup(warpID)
	if !ok {
		return graph.AttachmentValue{}, false, nil
	}
	val, ok := view.NodeAttachment(owner, key)
	return val, ok, nil
}

func (a *API) cacheGet(key string) (any, bool) {
	if a.cache == nil {
		return nil, false
	}
	return a.cache.Get(key)
}

func (a *API) cacheSet(key string, value any, cost int64) {
	if a.cache == nil {
		return
	}
	a.cache.Set(key, value, cost)
}

func cacheKey(kind string, warpID ids.WarpId, id ids.ID) string {
	return kind + ":" + warpID.String() + ":" + id.String()
}
