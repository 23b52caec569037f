package cache

import (
	"context"

	"script_ink/script_bazaar/lineage"

	"github.com/google/uuid"
)

// LineageCache holds assembled lineages keyed by root id. A miss returns nil
// with no error. Entries are only a read optimization, access checks never
// consult the cache.
type LineageCache interface {
	Get(ctx context.Context, rootId uuid.UUID) (*lineage.Lineage, error)
	Set(ctx context.Context, value lineage.Lineage) error
	Invalidate(ctx context.Context, rootId uuid.UUID) error
}

type NoopLineageCache struct{}

var _ LineageCache = NoopLineageCache{}

func (NoopLineageCache) Get(ctx context.Context, rootId uuid.UUID) (*lineage.Lineage, error) {
	return nil, nil
}

func (NoopLineageCache) Set(ctx context.Context, value lineage.Lineage) error {
	return nil
}

func (NoopLineageCache) Invalidate(ctx context.Context, rootId uuid.UUID) error {
	return nil
}
