package manifest

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"raremblems/internal/bungie"
	"raremblems/internal/bytecache"
	"raremblems/internal/telemetry"
	"raremblems/internal/testutil"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const indexBody = `{
	"Response": {
		"version": "1",
		"jsonWorldComponentContentPaths": {
			"en": {
				"DestinyCollectibleDefinition": "/common/destiny2_content/json/en/DestinyCollectibleDefinition-v1.json",
				"DestinyInventoryItemDefinition": "/common/destiny2_content/json/en/DestinyInventoryItemDefinition-v1.json"
			}
		}
	},
	"ErrorCode": 1
}`

const collectibleBody = `{
	"100": {"hash": 100, "itemHash": 1000},
	"200": {"hash": 200}
}`

const itemBody = `{
	"1000": {
		"hash": 1000,
		"displayProperties": {"name": "Field of Light", "icon": "/x.png"},
		"itemCategoryHashes": [19]
	}
}`

type platform struct {
	mu    sync.Mutex
	hits  map[string]int
	fail  bool
	index string
}

func (p *platform) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.hits[r.URL.Path]++
	fail := p.fail
	idx := p.index
	p.mu.Unlock()

	if fail {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	switch r.URL.Path {
	case "/Platform/Destiny2/Manifest/":
		io.WriteString(w, idx)
	case "/common/destiny2_content/json/en/DestinyCollectibleDefinition-v1.json":
		io.WriteString(w, collectibleBody)
	case "/common/destiny2_content/json/en/DestinyInventoryItemDefinition-v1.json":
		io.WriteString(w, itemBody)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *platform) set(fail bool, index string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = fail
	p.index = index
}

func (p *platform) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.hits {
		n += c
	}
	return n
}

func setup(t *testing.T, locale string) (*platform, Resolver, bytecache.Cache) {
	p := &platform{hits: map[string]int{}, index: indexBody}
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)

	cache := testutil.Cache(t)
	client := bungie.NewClient(bungie.Options{BaseUrl: srv.URL, ApiKey: "k"}, &telemetry.Recorder{})
	return p, NewResolver(client, cache, locale, &telemetry.Recorder{}), cache
}

func TestLoadCatalogs(t *testing.T) {
	p, resolver, cache := setup(t, "en")
	ctx := context.Background()

	catalogs, err := resolver.LoadCatalogs(ctx)
	require.NoError(t, err)

	expected := Catalogs{
		Collectibles: map[uint32]CollectibleDefinition{
			100: {ItemHash: 1000},
			200: {},
		},
		Items: map[uint32]ItemDefinition{
			1000: {
				DisplayProperties:  DisplayProperties{Name: "Field of Light"},
				ItemCategoryHashes: []uint32{19},
			},
		},
	}
	require.Empty(t, cmp.Diff(expected, catalogs))
	require.Equal(t, 3, p.total())

	for _, key := range []string{
		bytecache.ManifestIndexKey,
		"DestinyCollectibleDefinition_en.json",
		"DestinyInventoryItemDefinition_en.json",
	} {
		_, err := cache.Get(ctx, key)
		require.NoError(t, err, key)
	}

	raw, err := cache.Get(ctx, "DestinyInventoryItemDefinition_en.json")
	require.NoError(t, err)
	require.Equal(t, itemBody, string(raw))

	again, err := resolver.LoadCatalogs(ctx)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(expected, again))
	require.Equal(t, 3, p.total(), "second load must be served from the cache")
}

func TestCachedTablesSurviveIndexRotation(t *testing.T) {
	p, resolver, cache := setup(t, "en")
	ctx := context.Background()

	_, err := resolver.LoadCatalogs(ctx)
	require.NoError(t, err)

	// the index now points elsewhere, the tables stay cached under their fixed keys
	require.NoError(t, cache.Put(ctx, bytecache.ManifestIndexKey, []byte(`{
		"Response": {"jsonWorldComponentContentPaths": {"en": {
			"DestinyCollectibleDefinition": "/v2/collectibles.json",
			"DestinyInventoryItemDefinition": "/v2/items.json"
		}}},
		"ErrorCode": 1
	}`)))

	catalogs, err := resolver.LoadCatalogs(ctx)
	require.NoError(t, err)
	require.Contains(t, catalogs.Items, uint32(1000))
	require.Equal(t, 3, p.total())
}

func TestLoadCatalogsFailures(t *testing.T) {
	t.Run("network", func(t *testing.T) {
		p, resolver, _ := setup(t, "en")
		p.set(true, indexBody)
		_, err := resolver.LoadCatalogs(context.Background())
		var statusErr bungie.StatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	})

	t.Run("missing locale", func(t *testing.T) {
		_, resolver, _ := setup(t, "fr")
		_, err := resolver.LoadCatalogs(context.Background())
		require.ErrorContains(t, err, `"fr"`)
	})

	t.Run("error envelope is not cached", func(t *testing.T) {
		p, resolver, cache := setup(t, "en")
		p.set(false, `{"ErrorCode": 5, "ErrorStatus": "SystemDisabled", "Message": "maintenance"}`)
		_, err := resolver.LoadCatalogs(context.Background())
		require.Error(t, err)

		_, err = cache.Get(context.Background(), bytecache.ManifestIndexKey)
		require.ErrorIs(t, err, bytecache.ErrMiss)
	})
}
