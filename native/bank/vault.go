package bank

import (
	"errors"
	"fmt"

	"otcswap/core/state"
)

var (
	ErrInvalidVaultOwner = errors.New("bank: invalid vault owner")
	ErrVaultExists       = errors.New("bank: vault already exists")
	ErrVaultNotFound     = errors.New("bank: vault not found")
	ErrVaultNotEmpty     = errors.New("bank: vault not empty")
)

var vaultPrefix = []byte("bank/vault/")

func vaultKey(addr [20]byte) []byte {
	buf := make([]byte, 0, len(vaultPrefix)+len(addr))
	buf = append(buf, vaultPrefix...)
	return append(buf, addr[:]...)
}

// Vault is a custody account whose balance may only be released by its
// authority. Deposit is a storage deposit taken from the owner when the vault
// opens and returned when it closes.
type Vault struct {
	Address      [20]byte
	Authority    [20]byte
	Owner        [20]byte
	Asset        [20]byte
	DepositAsset [20]byte
	Deposit      uint64
}

func vaultExists(tx *state.Tx, addr [20]byte) (bool, error) {
	return tx.KVGet(vaultKey(addr), nil)
}

// LoadVault returns the vault stored at addr.
func LoadVault(tx *state.Tx, addr [20]byte) (*Vault, error) {
	var v Vault
	ok, err := tx.KVGet(vaultKey(addr), &v)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrVaultNotFound
	}
	return &v, nil
}

// OpenVault registers a new vault and charges the storage deposit to its
// owner.
func OpenVault(tx *state.Tx, v Vault) error {
	if tx == nil {
		return fmt.Errorf("bank: transaction required")
	}
	if v.Address == ([20]byte{}) || v.Authority == ([20]byte{}) || v.Owner == ([20]byte{}) {
		return ErrZeroAddress
	}
	exists, err := vaultExists(tx, v.Address)
	if err != nil {
		return err
	}
	if exists {
		return ErrVaultExists
	}
	if v.Deposit > 0 {
		if err := debit(tx, v.Owner, v.DepositAsset, v.Deposit); err != nil {
			return fmt.Errorf("bank: vault deposit: %w", err)
		}
	}
	return tx.KVPut(vaultKey(v.Address), v)
}

// Fund moves amount of the vault asset from an ordinary account into the
// vault.
func Fund(tx *state.Tx, vault, from [20]byte, amount uint64) error {
	v, err := LoadVault(tx, vault)
	if err != nil {
		return err
	}
	isVault, err := vaultExists(tx, from)
	if err != nil {
		return err
	}
	if isVault {
		return ErrVaultCustody
	}
	if err := debit(tx, from, v.Asset, amount); err != nil {
		return err
	}
	return Credit(tx, v.Address, v.Asset, amount)
}

// Release moves amount out of the vault. Only the vault authority may sign
// for it.
func Release(tx *state.Tx, vault, authority, to [20]byte, amount uint64) error {
	v, err := LoadVault(tx, vault)
	if err != nil {
		return err
	}
	if v.Authority != authority {
		return ErrInvalidVaultOwner
	}
	if to == ([20]byte{}) {
		return ErrZeroAddress
	}
	if err := debit(tx, v.Address, v.Asset, amount); err != nil {
		return err
	}
	return Credit(tx, to, v.Asset, amount)
}

// VaultBalance returns the custody balance of the vault.
func VaultBalance(tx *state.Tx, vault [20]byte) (uint64, error) {
	v, err := LoadVault(tx, vault)
	if err != nil {
		return 0, err
	}
	return tx.Balance(v.Address, v.Asset)
}

// Close deletes an empty vault and refunds the storage deposit to its owner.
// It returns the refunded deposit.
func Close(tx *state.Tx, vault, authority [20]byte) (uint64, error) {
	v, err := LoadVault(tx, vault)
	if err != nil {
		return 0, err
	}
	if v.Authority != authority {
		return 0, ErrInvalidVaultOwner
	}
	balance, err := tx.Balance(v.Address, v.Asset)
	if err != nil {
		return 0, err
	}
	if balance != 0 {
		return 0, fmt.Errorf("%w: %d remaining", ErrVaultNotEmpty, balance)
	}
	if err := tx.KVDelete(vaultKey(v.Address)); err != nil {
		return 0, err
	}
	if err := Credit(tx, v.Owner, v.DepositAsset, v.Deposit); err != nil {
		return 0, err
	}
	return v.Deposit, nil
}
