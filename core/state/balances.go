package state

var balancePrefix = []byte("balance/")

func balanceKey(account, asset [20]byte) []byte {
	buf := make([]byte, 0, len(balancePrefix)+len(asset)+1+len(account))
	buf = append(buf, balancePrefix...)
	buf = append(buf, asset[:]...)
	buf = append(buf, ':')
	buf = append(buf, account[:]...)
	return buf
}

// Balance returns the amount of asset held by account. Missing entries read
// as zero.
func (tx *Tx) Balance(account, asset [20]byte) (uint64, error) {
	var amount uint64
	if _, err := tx.KVGet(balanceKey(account, asset), &amount); err != nil {
		return 0, err
	}
	return amount, nil
}

// SetBalance stages a new balance for account. Zero balances are deleted.
func (tx *Tx) SetBalance(account, asset [20]byte, amount uint64) error {
	key := balanceKey(account, asset)
	if amount == 0 {
		return tx.KVDelete(key)
	}
	return tx.KVPut(key, amount)
}

// Balance returns the committed balance outside any transaction.
func (m *Manager) Balance(account, asset [20]byte) (uint64, error) {
	var amount uint64
	if _, err := m.KVGet(balanceKey(account, asset), &amount); err != nil {
		return 0, err
	}
	return amount, nil
}
