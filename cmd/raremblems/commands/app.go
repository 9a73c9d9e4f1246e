package commands

import (
	"context"
	"fmt"
	"log/slog"
	"raremblems/internal/bungie"
	"raremblems/internal/bytecache"
	"raremblems/internal/config"
	"raremblems/internal/oauth"
	"raremblems/internal/telemetry"
	"raremblems/lib/restyutil"
)

// openCache returns the configured cache, the returned function closes it.
func openCache(ctx context.Context, cfg config.CacheConfig) (bytecache.Cache, func(), error) {
	if cfg.Dsn != "" {
		store, err := bytecache.OpenSQLStore(ctx, cfg.Dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open cache database: %w", err)
		}
		return store, func() {
			err := store.Close()
			if err != nil {
				slog.Warn("failed to close cache database", "err", err)
			}
		}, nil
	}

	store, err := bytecache.NewFileStore(cfg.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("create cache directory: %w", err)
	}
	return store, func() {}, nil
}

func newGateway(cfg config.Config, tel telemetry.API) (oauth.Gateway, error) {
	gateway, err := oauth.NewGateway(oauth.Options{
		ClientId:        cfg.ClientId,
		ClientSecret:    cfg.ClientSecret,
		AuthorizeUrl:    cfg.AuthorizeUrl,
		TokenUrl:        cfg.TokenUrl,
		RedirectUri:     cfg.RedirectUri,
		CallbackTimeout: cfg.CallbackTimeoutDuration(),
		TlsCertFile:     cfg.TlsCertFile,
		TlsKeyFile:      cfg.TlsKeyFile,
	}, tel)
	if err != nil {
		return oauth.Gateway{}, fmt.Errorf("invalid redirect uri: %w", err)
	}
	return gateway, nil
}

func httpDump(cfg config.Config) (restyutil.Output, error) {
	if cfg.HttpDumpDir == "" {
		return nil, nil
	}
	out, err := restyutil.NewFilesystemOutput(cfg.HttpDumpDir)
	if err != nil {
		return nil, fmt.Errorf("create http dump directory: %w", err)
	}
	return out, nil
}

func newPlatform(cfg config.Config, dump restyutil.Output, tel telemetry.API) bungie.Client {
	return bungie.NewClient(bungie.Options{
		BaseUrl: cfg.ApiBaseUrl,
		ApiKey:  cfg.ApiKey,
		Retries: cfg.Retries,
		Dump:    dump,
	}, tel)
}
