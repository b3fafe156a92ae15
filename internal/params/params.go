// Package params collects the fixed size and policy constants shared by the
// hushwire core packages.
package params

const (
	// SecretSize is the length in bytes of a channel's shared secret, fixed by
	// the blake3 keyed-hash key length and the chacha20poly1305 key length.
	SecretSize = 32

	// ChannelIDSize is the length in bytes of a derived channel identifier.
	ChannelIDSize = 32

	// SequenceHashSize is the length in bytes of a sequence hash (SHA-256 output).
	SequenceHashSize = 32

	// SequenceRestSize is the length in bytes of the sequence-index encoding
	// appended to the channel identifier inside the proof circuit's preimage.
	SequenceRestSize = 8

	// CompressedPointSize is the length in bytes of a compressed secp256k1
	// public key, the on-wire form of a member identity.
	CompressedPointSize = 33

	// FilterFalsePositiveRate is the target false-positive probability of a
	// notification filter epoch.
	FilterFalsePositiveRate = 0.01

	// FilterEpochCapacity is the number of accepted writes after which the
	// current notification filter is sealed and a fresh epoch begins. The
	// boundary is count-based and public: clients cannot influence it, so an
	// epoch boundary reveals nothing about any client's sync schedule.
	FilterEpochCapacity = 1<<10 - 1
)
