package party

import (
	"encoding/binary"
	"io"
	"sort"
)

// IDSlice is a sorted slice of unique IDs. Its order is the canonical member
// ordering used for channel-identifier derivation and slot allocation, and is
// the same for every holder of the set.
type IDSlice []ID

// NewIDSlice returns a sorted copy of ids.
func NewIDSlice(ids []ID) IDSlice {
	out := make(IDSlice, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Valid returns true if the slice is non-empty, sorted and contains no
// duplicates.
func (ids IDSlice) Valid() bool {
	if len(ids) == 0 {
		return false
	}
	for i := 1; i < len(ids); i++ {
		if ids[i-1] >= ids[i] {
			return false
		}
	}
	return true
}

// Contains returns true if ids contains id.
// Assumes that ids is sorted.
func (ids IDSlice) Contains(id ID) bool {
	return ids.GetIndex(id) >= 0
}

// GetIndex returns the index of id in ids, or -1 if absent.
// Assumes that ids is sorted.
func (ids IDSlice) GetIndex(id ID) int {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	if i < len(ids) && ids[i] == id {
		return i
	}
	return -1
}

// Copy returns a sorted copy of ids.
func (ids IDSlice) Copy() IDSlice {
	return NewIDSlice(ids)
}

// WriteTo implements io.WriterTo, and should be used within a hash.Hash.
func (ids IDSlice) WriteTo(w io.Writer) (int64, error) {
	if err := binary.Write(w, binary.BigEndian, uint64(len(ids))); err != nil {
		return 0, err
	}
	nAll := int64(8)
	for _, id := range ids {
		n, err := id.WriteTo(w)
		nAll += n
		if err != nil {
			return nAll, err
		}
	}
	return nAll, nil
}

// Domain implements hash.WriterToWithDomain, and separates this type within
// hash.Hash.
func (IDSlice) Domain() string {
	return "IDSlice"
}
