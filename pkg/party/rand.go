package party

import "github.com/decred/dcrd/dcrec/secp256k1/v4"

// RandomIDs returns a sorted slice of n freshly generated member IDs.
// It is intended for tests and examples.
func RandomIDs(n int) IDSlice {
	ids := make([]ID, n)
	for i := range ids {
		sk, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			panic(err)
		}
		ids[i] = IDFromPublicKey(sk.PubKey())
	}
	return NewIDSlice(ids)
}
