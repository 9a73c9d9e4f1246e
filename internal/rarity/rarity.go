// Package rarity looks up the community rarity of items on a third party
// database site. Lookups never fail, anything that goes wrong yields an
// unknown record.
package rarity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"raremblems/internal/assert"
	"raremblems/internal/bytecache"
	"raremblems/internal/telemetry"
	"raremblems/lib/restyutil"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
)

const (
	report_augmenter_fetch_rarity = "augmenter.fetch-rarity"
	report_augmenter_cache        = "augmenter.cache"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Record is the rarity of one item, Percent is nil when it is unknown.
type Record struct {
	ItemHash  uint32
	Percent   *float64
	SourceUrl string
}

func (r Record) Known() bool {
	return r.Percent != nil
}

// cached is what is stored under bytecache.RarityKey.
type cached struct {
	Percent float64 `json:"percent"`
	Source  string  `json:"source"`
}

type Options struct {
	// BaseUrl is the item page prefix, the item hash and a trailing slash are appended.
	BaseUrl string
	// PoliteDelay is waited after every page that was fetched and matched.
	PoliteDelay time.Duration
	// Extractors default to DefaultExtractors.
	Extractors []Extractor
	// Dump receives every fetched page when set.
	Dump restyutil.Output
}

type Augmenter struct {
	opts  Options
	http  *resty.Client
	cache bytecache.Cache
	tel   telemetry.API
	sleep func(ctx context.Context, d time.Duration)
}

func NewAugmenter(opts Options, cache bytecache.Cache, tel telemetry.API) Augmenter {
	assert.NotNil(cache, "cache")
	assert.NotNil(tel, "telemetry")

	tel = telemetry.NewScopedAPI("rarity", tel)

	if opts.Extractors == nil {
		opts.Extractors = DefaultExtractors
	}
	if !strings.HasSuffix(opts.BaseUrl, "/") {
		opts.BaseUrl += "/"
	}

	client := resty.New()
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", userAgent)
	client.SetTimeout(time.Second * 30)
	telemetry.InstrumentResty(client, tel)
	restyutil.Dump(client, "rarity", opts.Dump)

	return Augmenter{
		opts:  opts,
		http:  client,
		cache: cache,
		tel:   tel,
		sleep: sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (a Augmenter) itemUrl(itemHash uint32) string {
	return fmt.Sprintf("%s%d/", a.opts.BaseUrl, itemHash)
}

func (a Augmenter) fromCache(ctx context.Context, itemHash uint32) (Record, bool) {
	key := bytecache.RarityKey(itemHash)
	body, err := a.cache.Get(ctx, key)
	if errors.Is(err, bytecache.ErrMiss) {
		return Record{}, false
	}
	if err != nil {
		a.tel.ReportWarning(report_augmenter_cache, fmt.Errorf("read %s: %w", key, err))
		return Record{}, false
	}

	var entry cached
	err = json.Unmarshal(body, &entry)
	if err != nil {
		a.tel.ReportWarning(report_augmenter_cache, fmt.Errorf("decode %s: %w", key, err))
		return Record{}, false
	}
	return Record{ItemHash: itemHash, Percent: &entry.Percent, SourceUrl: entry.Source}, true
}

// FetchRarity returns the rarity of the item, from the cache if it was looked
// up before. Only matched lookups are cached, so unknown items are retried on
// the next run.
func (a Augmenter) FetchRarity(ctx context.Context, itemHash uint32) Record {
	if record, ok := a.fromCache(ctx, itemHash); ok {
		return record
	}

	unknown := Record{ItemHash: itemHash}
	url := a.itemUrl(itemHash)

	res, err := a.http.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		a.tel.ReportWarning(report_augmenter_fetch_rarity, err, itemHash)
		return unknown
	}
	if res.IsError() {
		a.tel.ReportWarning(report_augmenter_fetch_rarity, fmt.Errorf("GET %s: %s", url, res.Status()), itemHash)
		return unknown
	}

	percent, ok := Extract(res.Body(), a.opts.Extractors)
	if !ok {
		a.tel.ReportDebug("no rarity on page", itemHash, url)
		return unknown
	}

	body, err := json.Marshal(cached{Percent: percent, Source: url})
	if err == nil {
		err = a.cache.Put(ctx, bytecache.RarityKey(itemHash), body)
	}
	if err != nil {
		a.tel.ReportWarning(report_augmenter_cache, fmt.Errorf("write %s: %w", bytecache.RarityKey(itemHash), err))
	}

	a.sleep(ctx, a.opts.PoliteDelay)
	return Record{ItemHash: itemHash, Percent: &percent, SourceUrl: url}
}
