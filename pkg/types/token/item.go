package token

import "github.com/slimebit/slimechain/pkg/types"

// Item is a single issued token. Ids are assigned sequentially from 1 and
// never reused: a burned item keeps its record with Burned set, so the id
// can never be allocated again.
type Item struct {
	Owner  types.Principal `json:"owner"`
	Burned bool            `json:"burned,omitempty"`
}
