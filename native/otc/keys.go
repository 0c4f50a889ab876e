package otc

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	offerPrefix       = []byte("otc/offer/")
	whitelistPrefix   = []byte("otc/whitelist/")
	feeSnapshotPrefix = []byte("otc/fee/")
	makerQuotaPrefix  = []byte("otc/quota/")

	adminConfigKey     = []byte("otc/admin_config")
	feeConfigKey       = []byte("otc/fee_config")
	whitelistConfigKey = []byte("otc/whitelist_config")
	mintWhitelistKey   = []byte("otc/mint_whitelist")
	custodyOffersKey   = []byte("otc/custody_offers")
)

// OfferAddress derives the deterministic address of a maker's offer. Reusing
// an offer id yields the same address, which is how duplicates are detected.
func OfferAddress(maker [20]byte, offerID uint64) [20]byte {
	var id [8]byte
	binary.LittleEndian.PutUint64(id[:], offerID)
	hash := ethcrypto.Keccak256([]byte("offer"), maker[:], id[:])
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

// VaultAddress derives the custody vault owned by the offer.
func VaultAddress(offer [20]byte) [20]byte {
	hash := ethcrypto.Keccak256([]byte("vault"), offer[:])
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

func prefixed(prefix []byte, addr [20]byte) []byte {
	buf := make([]byte, 0, len(prefix)+len(addr))
	buf = append(buf, prefix...)
	return append(buf, addr[:]...)
}

func offerKey(addr [20]byte) []byte       { return prefixed(offerPrefix, addr) }
func whitelistKey(addr [20]byte) []byte   { return prefixed(whitelistPrefix, addr) }
func feeSnapshotKey(addr [20]byte) []byte { return prefixed(feeSnapshotPrefix, addr) }
func makerQuotaKey(maker [20]byte) []byte { return prefixed(makerQuotaPrefix, maker) }
