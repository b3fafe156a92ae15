package channel

import "github.com/hushwire/hushwire/pkg/party"

// Slot allocation partitions the sequence-number space among members: the
// member at position p of the canonical ordering owns every index congruent
// to p modulo the member count. The map (member, localCounter) → globalIndex
// is injective, so two members can never pick the same index without any
// coordination; the repository's no-overwrite rule is the second line of
// defense. The cost is on the receive side: observing all traffic means
// polling one interleaved index stream per member.

// Slot returns the member's position in the canonical ordering, or -1 if it
// is not a member.
func Slot(members party.IDSlice, member party.ID) int {
	return members.GetIndex(member)
}

// GlobalIndex maps a member's local counter to its global sequence index.
// With width 1 this degenerates to the plain counter.
func GlobalIndex(slot, width, local uint64) uint64 {
	return local*width + slot
}

// SlotOf returns the slot that owns a global index.
func SlotOf(globalIndex, width uint64) uint64 {
	return globalIndex % width
}

// LocalOf returns the owning member's local counter for a global index.
func LocalOf(globalIndex, width uint64) uint64 {
	return globalIndex / width
}
