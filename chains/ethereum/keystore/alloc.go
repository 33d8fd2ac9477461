package keystore

import (
	"encoding/json"
	"fmt"
	"math/big"
)

type allocAccount struct {
	Balance string `json:"balance"`
}

// GenesisAlloc renders the records as a genesis "alloc" object crediting every address with balance wei.
// It is meant for seeding a development chain with the generated senders.
func GenesisAlloc(records []KeyRecord, balance *big.Int) ([]byte, error) {
	if balance == nil || balance.Sign() < 0 {
		return nil, fmt.Errorf("balance must be a non-negative amount")
	}
	alloc := make(map[string]allocAccount, len(records))
	for _, r := range records {
		alloc[r.Address().Hex()] = allocAccount{Balance: balance.String()}
	}
	return json.MarshalIndent(alloc, "", "  ")
}
