package bungie

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID is a platform identifier. The platform serializes 64 bit ids as strings but
// some endpoints hand out plain numbers, both decode to the same value.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		err := json.Unmarshal(data, &s)
		if err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	err := json.Unmarshal(data, &n)
	if err != nil {
		return fmt.Errorf("membership id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

type Membership struct {
	MembershipType int    `json:"membershipType"`
	MembershipId   ID     `json:"membershipId"`
	DisplayName    string `json:"displayName"`
}

type UserMemberships struct {
	DestinyMemberships []Membership `json:"destinyMemberships"`
	// PrimaryMembershipId is set when the account has a cross save override.
	PrimaryMembershipId ID `json:"primaryMembershipId"`
}

// Component is the wrapper every profile component comes in.
type Component[T any] struct {
	Data    T   `json:"data"`
	Privacy int `json:"privacy"`
}

// CollectibleState is the collection state of one collectible, bit 0 of State
// means "not acquired".
type CollectibleState struct {
	State uint32 `json:"state"`
}

type Collectibles struct {
	Collectibles map[uint32]CollectibleState `json:"collectibles"`
}

// Profile holds the components of a profile response that are decoded, the others
// requested alongside are ignored.
type Profile struct {
	ProfileCollectibles   Component[Collectibles]            `json:"profileCollectibles"`
	CharacterCollectibles Component[map[string]Collectibles] `json:"characterCollectibles"`
}

// ProfileComponents is the fixed set of components requested with a profile:
// profiles, profile inventories, characters, character progressions, collectibles, records.
var ProfileComponents = []int{100, 102, 200, 204, 800, 900}

// envelope is the wrapper around every platform api response.
type envelope struct {
	Response    json.RawMessage `json:"Response"`
	ErrorCode   int             `json:"ErrorCode"`
	ErrorStatus string          `json:"ErrorStatus"`
	Message     string          `json:"Message"`
}

const errorCodeSuccess = 1
