package types

// Network represents a Solana cluster selected by static configuration.
type Network string

const (
	// Mainnet represents the mainnet-beta cluster.
	Mainnet Network = "mainnet-beta"
	// Devnet represents the devnet cluster.
	Devnet Network = "devnet"
	// Testnet represents the testnet cluster.
	Testnet Network = "testnet"
	// UnknownNetwork represents unknown or unsupported cluster in the system.
	UnknownNetwork Network = "unknown"
)

// String converts Network to string representation
func (n Network) String() string {
	return string(n)
}

// ParseNetwork converts string to Network representation.
// "mainnet" is accepted as an alias of mainnet-beta.
func ParseNetwork(s string) Network {
	switch s {
	case Mainnet.String(), "mainnet":
		return Mainnet
	case Devnet.String():
		return Devnet
	case Testnet.String():
		return Testnet
	default:
		return UnknownNetwork
	}
}

// Mode represents how a settlement transaction is constructed.
type Mode string

const (
	// ModeSimulated builds a native transfer that approximates the settlement value.
	// Used outside production.
	ModeSimulated Mode = "simulated"
	// ModeLive builds a real aggregator swap transaction.
	ModeLive Mode = "live"
)

// String converts Mode to string representation
func (m Mode) String() string {
	return string(m)
}
