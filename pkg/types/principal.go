package types

// Principal is an opaque caller identity, pre-authenticated by the host
// before the transaction reaches the application.
type Principal string

func (p Principal) String() string {
	return string(p)
}

func (p Principal) Bytes() []byte {
	return []byte(p.String())
}
