package config

type Config struct {
	StateStore struct {
		Directory string `env:"DIRECTORY" json:"directory"`
	} `envPrefix:"STATE_STORE_" json:"state_store"`

	// Drop holds the genesis parameters of the collection. They are applied
	// once, when the token app starts with an uninitialized tree; afterwards
	// the chain state is authoritative and changes go through the admin
	// setters.
	Drop struct {
		Name           string `env:"NAME" json:"name"`
		Symbol         string `env:"SYMBOL" json:"symbol"`
		Owner          string `env:"OWNER" json:"owner"`
		BaseURI        string `env:"BASE_URI" json:"base_uri"`
		NotRevealedURI string `env:"NOT_REVEALED_URI" json:"not_revealed_uri"`
		URISuffix      string `env:"URI_SUFFIX" json:"uri_suffix"`
		CostNative     string `env:"COST_NATIVE" json:"cost_native"`
		CostAsset      string `env:"COST_ASSET" json:"cost_asset"`
		MaxPerTx       uint64 `env:"MAX_PER_TX" json:"max_per_tx"`
		MaxSupply      uint64 `env:"MAX_SUPPLY" json:"max_supply"`
	} `envPrefix:"DROP_" json:"drop"`
}

func Default() Config {
	var cfg Config
	cfg.StateStore.Directory = "state"
	cfg.Drop.Name = "Slime Bit Token"
	cfg.Drop.Symbol = "SBT"
	cfg.Drop.BaseURI = "ipfs://Qmci4xZ5WvhtqS9tCyzWVry7XXiALyNYzimfFpJ5roGsJ1/"
	cfg.Drop.NotRevealedURI = "https://gateway.pinata.cloud/ipfs/QmWRxGJ2v99nWFdhxmvBFhTA8Q8S8wGbuK7VGJUx7NNVyw/notRevealed.png"
	cfg.Drop.CostNative = "0"
	cfg.Drop.CostAsset = "0"
	cfg.Drop.MaxPerTx = 5
	cfg.Drop.MaxSupply = 10000
	return cfg
}
