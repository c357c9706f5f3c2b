package types

// HandshakeRequest is sent by the host on every start.
type HandshakeRequest struct {
	// Last block the host committed. Nil on a fresh deployment.
	LastCommitted *BlockID `cramberry:"1"`
	// Set only when LastCommitted is nil.
	Genesis *GenesisDoc `cramberry:"2"`
}

// HandshakeResponse reports the application's committed position.
type HandshakeResponse struct {
	// Last height the application committed. Nil right after genesis.
	LastBlock *BlockID `cramberry:"1"`
	// Hash of the committed snapshot, for the host's divergence check.
	AppHash      *AppHash     `cramberry:"2"`
	Capabilities Capabilities `cramberry:"3"`
}
