package bank

import (
	"errors"
	"fmt"
	"math/bits"

	"otcswap/core/state"
)

var (
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrBalanceOverflow     = errors.New("bank: balance overflow")
	ErrZeroAddress         = errors.New("bank: zero address")
	// ErrVaultCustody is returned when a plain transfer tries to spend funds
	// held by an escrow vault.
	ErrVaultCustody = errors.New("bank: vault funds move only through the vault authority")
)

// Credit adds amount of asset to account. It is used for genesis funding and
// by the vault helpers; user-initiated movements go through Transfer.
func Credit(tx *state.Tx, account, asset [20]byte, amount uint64) error {
	if tx == nil {
		return fmt.Errorf("bank: transaction required")
	}
	if account == ([20]byte{}) {
		return ErrZeroAddress
	}
	if amount == 0 {
		return nil
	}
	balance, err := tx.Balance(account, asset)
	if err != nil {
		return err
	}
	sum, carry := bits.Add64(balance, amount, 0)
	if carry != 0 {
		return ErrBalanceOverflow
	}
	return tx.SetBalance(account, asset, sum)
}

func debit(tx *state.Tx, account, asset [20]byte, amount uint64) error {
	if amount == 0 {
		return nil
	}
	balance, err := tx.Balance(account, asset)
	if err != nil {
		return err
	}
	if balance < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, balance, amount)
	}
	return tx.SetBalance(account, asset, balance-amount)
}

// Transfer moves amount of asset between two ordinary accounts. Vault
// accounts are rejected as a source.
func Transfer(tx *state.Tx, from, to, asset [20]byte, amount uint64) error {
	if tx == nil {
		return fmt.Errorf("bank: transaction required")
	}
	if from == ([20]byte{}) || to == ([20]byte{}) {
		return ErrZeroAddress
	}
	isVault, err := vaultExists(tx, from)
	if err != nil {
		return err
	}
	if isVault {
		return ErrVaultCustody
	}
	if err := debit(tx, from, asset, amount); err != nil {
		return err
	}
	return Credit(tx, to, asset, amount)
}
