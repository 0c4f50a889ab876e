package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the human-readable part used when rendering
// addresses.
type AddressPrefix string

const (
	// AccountPrefix renders wallets, makers and takers.
	AccountPrefix AddressPrefix = "otc"
	// AssetPrefix renders asset (mint) identifiers.
	AssetPrefix AddressPrefix = "asset"
)

// Address represents a 20-byte ledger address with a specific prefix.
type Address struct {
	prefix AddressPrefix
	bytes  [20]byte
}

func NewAddress(prefix AddressPrefix, b [20]byte) Address {
	return Address{prefix: prefix, bytes: b}
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() [20]byte {
	return a.bytes
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != 20 {
		return Address{}, fmt.Errorf("address must be 20 bytes long, got %d", len(conv))
	}
	var raw [20]byte
	copy(raw[:], conv)
	return NewAddress(AddressPrefix(prefix), raw), nil
}

// ParseAddress accepts either a bech32 address or a 0x-prefixed hex string and
// returns the raw 20 bytes.
func ParseAddress(value string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return out, fmt.Errorf("address required")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		decoded, err := hex.DecodeString(trimmed[2:])
		if err != nil {
			return out, fmt.Errorf("decode hex address: %w", err)
		}
		if len(decoded) != 20 {
			return out, fmt.Errorf("address must be 20 bytes long, got %d", len(decoded))
		}
		copy(out[:], decoded)
		return out, nil
	}
	addr, err := DecodeAddress(strings.ToLower(trimmed))
	if err != nil {
		return out, err
	}
	return addr.Bytes(), nil
}

// FormatAccount renders raw bytes with the account prefix.
func FormatAccount(b [20]byte) string { return NewAddress(AccountPrefix, b).String() }

// FormatAsset renders raw bytes with the asset prefix.
func FormatAsset(b [20]byte) string { return NewAddress(AssetPrefix, b).String() }

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

func (k *PublicKey) Address() Address {
	return NewAddress(AccountPrefix, crypto.PubkeyToAddress(*k.PublicKey))
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}
