// Package addrstore caches verified deployment-address details so repeated
// contract verification runs stop hitting Etherscan and the chain.
package addrstore

import (
	"context"
	"errors"
)

// ErrAddressNotFound is returned when a lookup finds no cached record.
var ErrAddressNotFound = errors.New("deployment address not found")

// Details describes one verified deployment address: the metadata Etherscan
// reports for it plus the runtime bytecode read from the chain.
type Details struct {
	DeploymentAddress  string
	ContractName       string
	CompilerVersion    string
	Optimized          bool
	OptimizationRuns   int
	BlockchainBytecode string
}

// Store defines the interface for deployment-address cache persistence
type Store interface {
	Get(ctx context.Context, deploymentAddress string) (*Details, error)
	Put(ctx context.Context, details *Details) error
}
