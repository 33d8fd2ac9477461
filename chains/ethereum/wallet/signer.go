package wallet

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Signer handles signing for Ethereum transactions on a single chain
type Signer struct {
	key     KeyPair
	chainID *big.Int
	signer  types.Signer
}

// NewSigner creates a new Ethereum signer with the given key pair and chain ID
func NewSigner(key KeyPair, chainID *big.Int) *Signer {
	return &Signer{
		key:     key,
		chainID: chainID,
		signer:  types.LatestSignerForChainID(chainID),
	}
}

// Address returns the Ethereum address derived from the private key
func (s *Signer) Address() common.Address {
	return s.key.Address()
}

// ChainID returns the chain ID used for signing
func (s *Signer) ChainID() *big.Int {
	return s.chainID
}

// SignTx signs a legacy or EIP-1559 transaction with replay protection for the signer's chain.
func (s *Signer) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	return types.SignTx(tx, s.signer, s.key.PrivateKey())
}

// Sender recovers the address that signed tx.
func (s *Signer) Sender(tx *types.Transaction) (common.Address, error) {
	return types.Sender(s.signer, tx)
}
