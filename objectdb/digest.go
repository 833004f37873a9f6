package objectdb

import (
	"encoding/json"
	"sort"

	"lukechampine.com/blake3"

	"marketchain/types"
)

// DigestIndex returns a content hash of every object currently held in ix,
// ordered by instance so the digest is deterministic regardless of Go map
// iteration order, so two states of an index can be compared by one hash
// instead of object-by-object.
func DigestIndex[T any](ix *Index[T]) [32]byte {
	type entry struct {
		instance uint64
		id       types.ObjectID
	}
	entries := make([]entry, 0, ix.Len())
	ix.ForEach(func(id types.ObjectID, _ T) bool {
		entries = append(entries, entry{instance: id.Instance, id: id})
		return true
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].instance < entries[j].instance })

	h := blake3.New(32, nil)
	for _, e := range entries {
		v, _ := ix.Get(e.id)
		encoded, err := json.Marshal(v)
		if err != nil {
			panic(err) // object types are plain data structs, see cloneValue
		}
		h.Write(encoded)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
