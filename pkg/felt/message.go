package felt

var (
	messagePrefix  = MustShortString("StarkNet Message")
	domainTypeHash = TypeHash(`"StarknetDomain"("name":"shortstring","version":"shortstring","chainId":"shortstring","revision":"shortstring")`)
)

// Domain separates typed messages by application, version and chain.
type Domain struct {
	Name     string
	Version  uint64
	ChainID  Felt
	Revision uint64
}

// Hash returns the struct hash of the domain. Domain names are compile-time
// constants, so an invalid name is a programming error.
func (d Domain) Hash() Felt {
	return PoseidonMany(
		domainTypeHash,
		MustShortString(d.Name),
		FromUint64(d.Version),
		d.ChainID,
		FromUint64(d.Revision),
	)
}

// MessageHash binds a struct hash to a domain and the signing account.
func MessageHash(domain Domain, account Felt, structHash Felt) Felt {
	return PoseidonMany(messagePrefix, domain.Hash(), account, structHash)
}

// MerkleRoot returns the root of the merkletree typed-data value over leaves.
// Pairs are hashed smaller value first and odd layers are padded with zero.
// The root of an empty tree is zero.
func MerkleRoot(leaves ...Felt) Felt {
	if len(leaves) == 0 {
		return Zero
	}
	layer := append([]Felt(nil), leaves...)
	for len(layer) > 1 {
		if len(layer)%2 != 0 {
			layer = append(layer, Zero)
		}
		next := make([]Felt, 0, len(layer)/2)
		for i := 0; i < len(layer); i += 2 {
			a, b := layer[i], layer[i+1]
			if a.Cmp(b) > 0 {
				a, b = b, a
			}
			next = append(next, Poseidon(a, b))
		}
		layer = next
	}
	return layer[0]
}
