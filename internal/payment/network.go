package payment

import (
	"fmt"
	"strings"
)

// Network selects the Cardano network a payment settles on.
type Network string

const (
	Preprod Network = "Preprod"
	Mainnet Network = "Mainnet"
)

// ParseNetwork accepts either network name in any case.
func ParseNetwork(s string) (Network, error) {
	switch {
	case strings.EqualFold(s, string(Preprod)):
		return Preprod, nil
	case strings.EqualFold(s, string(Mainnet)):
		return Mainnet, nil
	}
	return "", fmt.Errorf("unknown network %q", s)
}

func (n Network) String() string { return string(n) }
