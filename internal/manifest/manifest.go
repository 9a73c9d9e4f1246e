// Package manifest loads the platform's content definition tables the
// ownership resolution works against.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"raremblems/internal/assert"
	"raremblems/internal/bungie"
	"raremblems/internal/bytecache"
	"raremblems/internal/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("raremblems.internal.manifest")

const (
	CollectibleTable = "DestinyCollectibleDefinition"
	ItemTable        = "DestinyInventoryItemDefinition"

	indexPath = "/Platform/Destiny2/Manifest/"
)

const (
	report_resolver_cache = "resolver.cache"
)

type CollectibleDefinition struct {
	// ItemHash is 0 when the collectible does not map to an item.
	ItemHash uint32 `json:"itemHash"`
}

type DisplayProperties struct {
	Name string `json:"name"`
}

type ItemDefinition struct {
	DisplayProperties  DisplayProperties `json:"displayProperties"`
	ItemCategoryHashes []uint32          `json:"itemCategoryHashes"`
}

// Catalogs are the two definition tables keyed by hash.
type Catalogs struct {
	Collectibles map[uint32]CollectibleDefinition
	Items        map[uint32]ItemDefinition
}

type index struct {
	JsonWorldComponentContentPaths map[string]map[string]string `json:"jsonWorldComponentContentPaths"`
}

// Fetcher fetches a platform path, bungie.Client implements it.
type Fetcher interface {
	Get(ctx context.Context, path string, accessToken string) ([]byte, error)
}

type Resolver struct {
	fetcher Fetcher
	cache   bytecache.Cache
	locale  string
	tel     telemetry.API
}

func NewResolver(fetcher Fetcher, cache bytecache.Cache, locale string, tel telemetry.API) Resolver {
	assert.NotNil(fetcher, "fetcher")
	assert.NotNil(cache, "cache")
	assert.NotNil(tel, "telemetry")

	return Resolver{
		fetcher: fetcher,
		cache:   cache,
		locale:  locale,
		tel:     telemetry.NewScopedAPI("manifest", tel),
	}
}

// cached returns the bytes under key, fetching and storing path on a miss. A
// failing cache write is reported but does not fail the load.
func (r Resolver) cached(ctx context.Context, key, path string, validate func([]byte) error) ([]byte, error) {
	body, err := r.cache.Get(ctx, key)
	if err == nil {
		r.tel.ReportDebug("cache hit", key)
		return body, nil
	}
	if !errors.Is(err, bytecache.ErrMiss) {
		r.tel.ReportWarning(report_resolver_cache, fmt.Errorf("read %s: %w", key, err))
	}

	r.tel.ReportDebug("fetching", path)
	body, err = r.fetcher.Get(ctx, path, "")
	if err != nil {
		return nil, err
	}
	err = validate(body)
	if err != nil {
		return nil, err
	}

	err = r.cache.Put(ctx, key, body)
	if err != nil {
		r.tel.ReportWarning(report_resolver_cache, fmt.Errorf("write %s: %w", key, err))
	}
	return body, nil
}

func (r Resolver) contentPaths(ctx context.Context) (map[string]string, error) {
	decode := func(body []byte) (index, error) {
		return bungie.DecodeResponse[index](body)
	}

	body, err := r.cached(ctx, bytecache.ManifestIndexKey, indexPath, func(body []byte) error {
		_, err := decode(body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("manifest index: %w", err)
	}
	idx, err := decode(body)
	if err != nil {
		return nil, fmt.Errorf("manifest index: %w", err)
	}

	paths, ok := idx.JsonWorldComponentContentPaths[r.locale]
	if !ok {
		return nil, fmt.Errorf("manifest index has no content paths for locale %q", r.locale)
	}
	return paths, nil
}

func loadTable[T any](ctx context.Context, r Resolver, paths map[string]string, table string) (map[uint32]T, error) {
	ctx, span := tracer.Start(ctx, "loadTable", trace.WithAttributes(
		attribute.String("table", table),
		attribute.String("locale", r.locale),
	))
	defer span.End()

	path, ok := paths[table]
	if !ok {
		err := fmt.Errorf("manifest index has no path for %s", table)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var out map[uint32]T
	body, err := r.cached(ctx, bytecache.TableKey(table, r.locale), path, func(body []byte) error {
		return json.Unmarshal(body, &out)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%s: %w", table, err)
	}
	if out == nil {
		err = json.Unmarshal(body, &out)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("decode %s: %w", table, err)
		}
	}
	span.SetAttributes(attribute.Int("entries", len(out)))
	return out, nil
}

// LoadCatalogs returns the collectible and item tables for the configured locale.
// The index and both tables are cached under fixed keys, so once a table is cached
// it is used even if the index has since moved on to a newer version.
func (r Resolver) LoadCatalogs(ctx context.Context) (Catalogs, error) {
	ctx, span := tracer.Start(ctx, "LoadCatalogs")
	defer span.End()

	paths, err := r.contentPaths(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Catalogs{}, err
	}

	collectibles, err := loadTable[CollectibleDefinition](ctx, r, paths, CollectibleTable)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Catalogs{}, err
	}
	items, err := loadTable[ItemDefinition](ctx, r, paths, ItemTable)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Catalogs{}, err
	}

	r.tel.ReportCount("catalog.collectibles", int64(len(collectibles)))
	r.tel.ReportCount("catalog.items", int64(len(items)))

	return Catalogs{Collectibles: collectibles, Items: items}, nil
}
