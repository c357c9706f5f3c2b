package types

// Capabilities declares the optional interfaces an application serves.
type Capabilities uint8

// CapSimulation: the application implements stagefund.Simulator.
const CapSimulation Capabilities = 1 << 0

// Has returns true if every bit of want is set.
func (c Capabilities) Has(want Capabilities) bool {
	return c&want == want
}

func (c Capabilities) String() string {
	if c.Has(CapSimulation) {
		return "Simulation"
	}
	return "none"
}
