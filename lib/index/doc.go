// Package index implements secondary indexes over the entries of a map.
//
// An index extracts a value from every entry it is told about (Insert, Update,
// Delete) and maintains two structures:
//
//   - the forward index: entry key -> extracted value. It answers "what did this
//     key contribute to the index" without extracting again, which is needed
//     to remove stale mappings when an entry changes.
//   - the inverse index: extracted value -> set of entry keys. This is the
//     structure queries use (see Contents).
//
// Both are kept consistent on every mutation: for every forward mapping k -> v
// the key k is contained in the key set of v and vice versa. If the extracted
// value is a collection (slice or array) and the index splits collections,
// the entry is added to the key set of every element.
//
// Partial Indexes:
//
//	If the extractor fails for an entry (returns an error or panics) the entry
//	is logged, excluded from the index and the index becomes partial
//	(IsPartial). Queries against a partial index are best effort. An excluded
//	key is included again as soon as a later extraction for it succeeds.
//
// Old Values:
//
//	To update an entry the index must know the previously extracted value. It
//	is taken from the forward index. If the index has no forward mapping for
//	the key (or was created WithoutForwardIndex) the entry must provide its
//	original value (OriginalEntry), otherwise Update fails with
//	ErrNoOriginalValue.
//
// Memory Accounting:
//
//	Every index estimates its own footprint (Units) incrementally. Sizes of
//	extracted values are computed by a Calculator that picks a strategy per
//	type: fixed size types (numbers, bools, pointer free structs), standard
//	types (strings, byte slices), a configured UnitCalculator, or for all
//	other types the size of the gob encoding.
//
// Thread Safety:
//
//	Insert, Update and Delete are serialized by the index itself, reads (Get,
//	Contents) take a read lock. The owning map is still responsible for
//	feeding mutations of the same key in order.
//
// Usage Example:
//
//	idx, err := index.New(index.Identity[int, string]())
//	if err != nil {
//	    // handle error
//	}
//	idx.Insert(index.NewEntry(1, "a"))
//	idx.Insert(index.NewEntry(2, "b"))
//	idx.Insert(index.NewEntry(3, "a"))
//
//	keys := idx.Contents().Get("a") // [1 3] (unordered)
package index
