package rpc

import (
	"encoding/json"
	"errors"

	"github.com/holiman/uint256"
	"github.com/slimebit/slimechain/pkg/types"
)

type Builder struct {
	requestType RequestType
	data        any

	principal types.Principal
	value     *uint256.Int

	app string
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) Data(requestType RequestType, data any) *Builder {
	b.requestType = requestType
	b.data = data
	return b
}

func (b *Builder) App(app string) *Builder {
	b.app = app
	return b
}

func (b *Builder) From(principal types.Principal) *Builder {
	b.principal = principal
	return b
}

func (b *Builder) WithValue(value *uint256.Int) *Builder {
	b.value = value
	return b
}

func (b *Builder) Build() (MuxedRequest, error) {
	if b.data == nil || b.requestType == "" {
		return MuxedRequest{}, errors.New("Data was not called on builder")
	}

	wrapped, err := wrap(b.requestType, b.data)
	if err != nil {
		return MuxedRequest{}, err
	}

	payload := AuthenticatedPayload{
		Payload:   wrapped,
		Principal: b.principal,
		Value:     b.value,
	}

	inner, err := json.Marshal(payload)
	if err != nil {
		return MuxedRequest{}, err
	}

	return MuxedRequest{
		App:  b.app,
		Data: inner,
	}, nil
}

func (b *Builder) Marshal() ([]byte, error) {
	payload, err := b.Build()
	if err != nil {
		return nil, err
	}

	return json.Marshal(payload)
}
