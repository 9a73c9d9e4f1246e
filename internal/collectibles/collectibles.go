// Package collectibles resolves which emblems a profile owns from its
// collection states and the manifest tables.
package collectibles

import (
	"cmp"
	"fmt"
	"raremblems/internal/bungie"
	"raremblems/internal/manifest"
	"raremblems/internal/telemetry"
	"slices"
)

// EmblemCategoryHash is the item category of emblems.
const EmblemCategoryHash uint32 = 19

const notAcquired uint32 = 1

type OwnedItem struct {
	ItemHash uint32
	Name     string
}

// Unlocked reports whether a collectible state counts as owned, only the
// "not acquired" bit is looked at.
func Unlocked(state uint32) bool {
	return state&notAcquired == 0
}

// unlockedHashes is the union of unlocked collectibles across the profile and
// every character.
func unlockedHashes(profile bungie.Profile) map[uint32]struct{} {
	out := map[uint32]struct{}{}
	add := func(c bungie.Collectibles) {
		for hash, s := range c.Collectibles {
			if Unlocked(s.State) {
				out[hash] = struct{}{}
			}
		}
	}
	add(profile.ProfileCollectibles.Data)
	for _, character := range profile.CharacterCollectibles.Data {
		add(character)
	}
	return out
}

func itemName(itemHash uint32, def manifest.ItemDefinition) string {
	if def.DisplayProperties.Name != "" {
		return def.DisplayProperties.Name
	}
	return fmt.Sprintf("Hash %d", itemHash)
}

// ResolveOwnedEmblems returns the emblems unlocked anywhere on the profile, once
// per item hash and sorted by it. Collectibles missing from the catalogs are skipped.
func ResolveOwnedEmblems(profile bungie.Profile, catalogs manifest.Catalogs, tel telemetry.API) []OwnedItem {
	tel = telemetry.NewScopedAPI("collectibles", tel)

	owned := map[uint32]OwnedItem{}
	unmapped := 0
	for hash := range unlockedHashes(profile) {
		collectible, ok := catalogs.Collectibles[hash]
		if !ok || collectible.ItemHash == 0 {
			tel.ReportDebug("collectible has no item mapping", hash)
			unmapped++
			continue
		}
		item, ok := catalogs.Items[collectible.ItemHash]
		if !ok {
			tel.ReportDebug("item missing from catalog", hash, collectible.ItemHash)
			unmapped++
			continue
		}
		if !slices.Contains(item.ItemCategoryHashes, EmblemCategoryHash) {
			continue
		}
		owned[collectible.ItemHash] = OwnedItem{
			ItemHash: collectible.ItemHash,
			Name:     itemName(collectible.ItemHash, item),
		}
	}
	if unmapped > 0 {
		tel.ReportDebug("skipped unmapped collectibles", unmapped)
	}

	out := make([]OwnedItem, 0, len(owned))
	for _, item := range owned {
		out = append(out, item)
	}
	slices.SortFunc(out, func(a, b OwnedItem) int {
		return cmp.Compare(a.ItemHash, b.ItemHash)
	})
	return out
}
