// Package pipeline runs one report: sign in, resolve the owned emblems and
// rank them by rarity.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"raremblems/internal/bungie"
	"raremblems/internal/collectibles"
	"raremblems/internal/manifest"
	"raremblems/internal/oauth"
	"raremblems/internal/rarity"
	"raremblems/internal/report"
	"raremblems/internal/telemetry"
)

// ErrNoEmblems is returned when the profile owns no emblems, usually because
// its collections are private.
var ErrNoEmblems = errors.New("no owned emblems found")

type Authorizer interface {
	ObtainSession(ctx context.Context, prompt func(loginUrl string)) (oauth.Token, error)
}

type Platform interface {
	Memberships(ctx context.Context, accessToken string) (bungie.UserMemberships, error)
	Profile(ctx context.Context, membership bungie.Membership, accessToken string) (bungie.Profile, error)
}

type CatalogLoader interface {
	LoadCatalogs(ctx context.Context) (manifest.Catalogs, error)
}

type RarityFetcher interface {
	FetchRarity(ctx context.Context, itemHash uint32) rarity.Record
}

type Stages struct {
	Auth     Authorizer
	Prompt   func(loginUrl string)
	Platform Platform
	Catalogs CatalogLoader
	Rarity   RarityFetcher
	Tel      telemetry.API
}

// Run returns every owned emblem with its rarity, sorted rarest first.
func Run(ctx context.Context, s Stages) ([]report.Row, error) {
	tel := telemetry.NewScopedAPI("pipeline", s.Tel)

	token, err := s.Auth.ObtainSession(ctx, s.Prompt)
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}

	memberships, err := s.Platform.Memberships(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("memberships: %w", err)
	}
	membership, err := bungie.PickPrimaryMembership(memberships)
	if err != nil {
		return nil, err
	}
	tel.ReportDebug("using membership", membership.MembershipType, string(membership.MembershipId))

	profile, err := s.Platform.Profile(ctx, membership, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}

	catalogs, err := s.Catalogs.LoadCatalogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}

	owned := collectibles.ResolveOwnedEmblems(profile, catalogs, s.Tel)
	if len(owned) == 0 {
		return nil, ErrNoEmblems
	}
	tel.ReportCount("owned_emblems", int64(len(owned)))

	rows := make([]report.Row, 0, len(owned))
	unknown := 0
	for _, item := range owned {
		err = ctx.Err()
		if err != nil {
			return nil, err
		}
		record := s.Rarity.FetchRarity(ctx, item.ItemHash)
		if !record.Known() {
			unknown++
		}
		rows = append(rows, report.Row{Item: item, Rarity: record})
	}
	if unknown > 0 {
		tel.ReportDebug("emblems with unknown rarity", unknown)
	}

	report.Sort(rows)
	return rows, nil
}
