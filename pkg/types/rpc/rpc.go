package rpc

import (
	"encoding/json"

	"github.com/holiman/uint256"
	"github.com/slimebit/slimechain/pkg/types"
)

type RequestType string

type Payload struct {
	Type RequestType     `json:"type"` // Payload type name
	Data json.RawMessage `json:"data"` // Payload type-specific data
}

// AuthenticatedPayload is a payload together with the caller identity and
// attached native funds, both established by the host transaction boundary.
type AuthenticatedPayload struct {
	Payload   `json:"payload"`
	Principal types.Principal `json:"principal"`       // Who is making the request
	Value     *uint256.Int    `json:"value,omitempty"` // Attached native amount, zero if absent
}

const Codespace = "rpc"

const (
	CodeOk = iota
	CodeUnknownRequestType
)

// AttachedValue returns the attached native amount, treating a missing field
// as zero.
func (p *AuthenticatedPayload) AttachedValue() *uint256.Int {
	if p.Value == nil {
		return uint256.NewInt(0)
	}

	return p.Value
}

func wrap(payloadType RequestType, payload any) (Payload, error) {
	marshalled, err := json.Marshal(payload)
	if err != nil {
		return Payload{}, err
	}

	return Payload{
		Type: payloadType,
		Data: marshalled,
	}, nil
}
