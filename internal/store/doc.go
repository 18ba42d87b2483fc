// Package store holds the in-memory record index.
//
// A Store is one guarded aggregate: the insertion-ordered primary map, the
// email and address indices and the identifier variation map live in a
// single index value that is only read or changed while the Store's lock
// is held. Replace builds a fresh index without the lock and swaps the
// pointer, so readers see either the old or the new index, never a mix.
package store
