package token

// CollectionInfo is the immutable identity of the drop, fixed at genesis.
type CollectionInfo struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}
