package types

// GenesisDoc is the raw genesis document for a fresh deployment.
type GenesisDoc struct {
	ChainID       string           `cramberry:"1"`
	GenesisTime   Timestamp        `cramberry:"2"`
	InitialHeight uint64           `cramberry:"3"`
	Params        GovernanceParams `cramberry:"4"`
	// Bonds preloaded into the stake registry.
	Stakes []StakeEntry `cramberry:"5"`
}
