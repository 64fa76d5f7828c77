package felt

import (
	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
	pedersenhash "github.com/consensys/gnark-crypto/ecc/stark-curve/pedersen-hash"
	"github.com/ethereum/go-ethereum/crypto"
)

// Keccak250 returns Keccak-256 of data truncated to its low 250 bits
// (starknet_keccak).
func Keccak250(data []byte) Felt {
	digest := crypto.Keccak256(data)
	digest[0] &= 0x03
	f, _ := FromBytes(digest)
	return f
}

// SelectorFromName returns the entrypoint selector for a function name.
func SelectorFromName(name string) Felt {
	if name == "__default__" || name == "__l1_default__" {
		return Zero
	}
	return Keccak250([]byte(name))
}

// TypeHash returns the hash of an encoded struct type such as
// `"Call"("To":"ContractAddress","Selector":"selector","Calldata":"felt*")`.
func TypeHash(encodedType string) Felt {
	return Keccak250([]byte(encodedType))
}

// Pedersen returns the Pedersen hash of a and b.
func Pedersen(a, b Felt) Felt {
	x, y := fp.Element(a), fp.Element(b)
	return Felt(pedersenhash.Pedersen(&x, &y))
}

// PedersenArray folds elems with Pedersen starting from zero and absorbs the
// length last (compute_hash_on_elements). Transaction hashes and contract
// addresses are built on it.
func PedersenArray(elems ...Felt) Felt {
	ptrs := make([]*fp.Element, len(elems))
	for i := range elems {
		e := fp.Element(elems[i])
		ptrs[i] = &e
	}
	return Felt(pedersenhash.PedersenArray(ptrs...))
}
