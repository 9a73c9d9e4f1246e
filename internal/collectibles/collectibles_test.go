package collectibles

import (
	"raremblems/internal/bungie"
	"raremblems/internal/manifest"
	"raremblems/internal/telemetry"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func states(m map[uint32]uint32) bungie.Collectibles {
	out := bungie.Collectibles{Collectibles: map[uint32]bungie.CollectibleState{}}
	for hash, state := range m {
		out.Collectibles[hash] = bungie.CollectibleState{State: state}
	}
	return out
}

func profile(account map[uint32]uint32, characters ...map[uint32]uint32) bungie.Profile {
	p := bungie.Profile{}
	p.ProfileCollectibles.Data = states(account)
	p.CharacterCollectibles.Data = map[string]bungie.Collectibles{}
	for i, c := range characters {
		p.CharacterCollectibles.Data[string(rune('a'+i))] = states(c)
	}
	return p
}

func emblem(name string) manifest.ItemDefinition {
	return manifest.ItemDefinition{
		DisplayProperties:  manifest.DisplayProperties{Name: name},
		ItemCategoryHashes: []uint32{EmblemCategoryHash},
	}
}

func TestUnlocked(t *testing.T) {
	for state := uint32(0); state < 1024; state++ {
		require.Equal(t, state&1 == 0, Unlocked(state), state)
	}
	require.True(t, Unlocked(0xfffffffe))
	require.False(t, Unlocked(0xffffffff))
}

func TestResolveOwnedEmblems(t *testing.T) {
	catalogs := manifest.Catalogs{
		Collectibles: map[uint32]manifest.CollectibleDefinition{
			1: {ItemHash: 10},
			2: {ItemHash: 20},
			3: {ItemHash: 10},
			4: {ItemHash: 40},
			5: {ItemHash: 50},
			6: {},
		},
		Items: map[uint32]manifest.ItemDefinition{
			10: emblem("Shadow of the Shard"),
			20: emblem("Tangled Web"),
			40: {
				DisplayProperties:  manifest.DisplayProperties{Name: "Ace of Spades"},
				ItemCategoryHashes: []uint32{1, 2},
			},
			50: {ItemCategoryHashes: []uint32{3, EmblemCategoryHash}},
		},
	}

	testCases := []struct {
		name    string
		profile bungie.Profile
		expect  []OwnedItem
	}{
		{
			name:    "account and character scope",
			profile: profile(map[uint32]uint32{1: 0}, map[uint32]uint32{2: 4}),
			expect: []OwnedItem{
				{ItemHash: 10, Name: "Shadow of the Shard"},
				{ItemHash: 20, Name: "Tangled Web"},
			},
		},
		{
			name:    "same item through two collectibles",
			profile: profile(map[uint32]uint32{1: 0}, map[uint32]uint32{3: 0}, map[uint32]uint32{1: 0}),
			expect: []OwnedItem{
				{ItemHash: 10, Name: "Shadow of the Shard"},
			},
		},
		{
			name:    "locked everywhere",
			profile: profile(map[uint32]uint32{1: 1, 2: 3}, map[uint32]uint32{1: 17}),
			expect:  []OwnedItem{},
		},
		{
			name:    "locked on account, unlocked on a character",
			profile: profile(map[uint32]uint32{2: 1}, map[uint32]uint32{2: 0}),
			expect: []OwnedItem{
				{ItemHash: 20, Name: "Tangled Web"},
			},
		},
		{
			name:    "not an emblem",
			profile: profile(map[uint32]uint32{4: 0}),
			expect:  []OwnedItem{},
		},
		{
			name:    "name fallback",
			profile: profile(map[uint32]uint32{5: 0}),
			expect: []OwnedItem{
				{ItemHash: 50, Name: "Hash 50"},
			},
		},
		{
			name:    "unmapped hashes",
			profile: profile(map[uint32]uint32{6: 0, 999: 0, 2: 0}),
			expect: []OwnedItem{
				{ItemHash: 20, Name: "Tangled Web"},
			},
		},
		{
			name:    "empty profile",
			profile: bungie.Profile{},
			expect:  []OwnedItem{},
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			owned := ResolveOwnedEmblems(test.profile, catalogs, &telemetry.Recorder{})
			require.Empty(t, cmp.Diff(test.expect, owned))
		})
	}
}

func TestUnmappedAreReportedAtDebug(t *testing.T) {
	catalogs := manifest.Catalogs{
		Collectibles: map[uint32]manifest.CollectibleDefinition{7: {ItemHash: 70}},
		Items:        map[uint32]manifest.ItemDefinition{},
	}
	tel := &telemetry.Recorder{}

	owned := ResolveOwnedEmblems(profile(map[uint32]uint32{7: 0, 8: 0}), catalogs, tel)
	require.Empty(t, owned)

	require.Empty(t, tel.Reports("broken"))
	require.Empty(t, tel.Reports("warning"))

	debug := tel.Reports("debug")
	require.Len(t, debug, 3)
	require.Equal(t, "collectibles: skipped unmapped collectibles", debug[2].Id)
	require.Equal(t, []any{2}, debug[2].Params)
}
