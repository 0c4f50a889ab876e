package otc

import (
	"otcswap/core/types"
	"otcswap/native/bank"
)

var genesisKey = []byte("otc/genesis")

// GenesisAllocation funds one account when the ledger is created.
type GenesisAllocation struct {
	Account [20]byte
	Asset   [20]byte
	Amount  uint64
}

// ApplyGenesis credits every allocation in a single transaction the first
// time it is called on a ledger. Later calls are no-ops and report false.
func (e *Engine) ApplyGenesis(allocs []GenesisAllocation) (bool, error) {
	applied := false
	err := e.update(func(s store) ([]*types.Event, error) {
		applied = false
		var count uint64
		ok, err := s.tx.KVGet(genesisKey, &count)
		if err != nil {
			return nil, err
		}
		if ok {
			return nil, nil
		}
		for _, alloc := range allocs {
			if err := bank.Credit(s.tx, alloc.Account, alloc.Asset, alloc.Amount); err != nil {
				return nil, err
			}
		}
		if err := s.tx.KVPut(genesisKey, uint64(len(allocs))); err != nil {
			return nil, err
		}
		applied = true
		return nil, nil
	})
	return applied, err
}
