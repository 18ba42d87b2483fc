package store

import (
	"math"
	"strings"
	"unicode"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/Aman-CERP/recidx/internal/record"
)

// idSet is a set of canonical ids sharing one index value.
type idSet map[string]struct{}

// index is the state guarded by Store.mu.
//
// records is used purely as an insertion-ordered map. Only Peek, Contains,
// Add, Remove, RemoveOldest and Keys are called, so entries are never
// reordered by reads and the capacity is never reached.
type index struct {
	records    *simplelru.LRU[string, record.Record]
	byEmail    map[string]idSet
	byAddress  map[string]idSet
	variations map[string]string
	// forms lists the variations registered for each canonical id.
	forms map[string][]string
}

func newIndex() *index {
	records, err := simplelru.NewLRU[string, record.Record](math.MaxInt, nil)
	if err != nil {
		// Only a non-positive size fails.
		panic(err)
	}
	return &index{
		records:    records,
		byEmail:    make(map[string]idSet),
		byAddress:  make(map[string]idSet),
		variations: make(map[string]string),
		forms:      make(map[string][]string),
	}
}

func buildIndex(recs []record.Record) *index {
	idx := newIndex()
	for _, r := range recs {
		idx.upsert(r)
	}
	return idx
}

// upsert inserts rec or overwrites the record with the same id. An
// overwritten id moves to the newest position.
func (x *index) upsert(rec record.Record) {
	if old, ok := x.records.Peek(rec.ID); ok {
		x.unindex(old)
	}
	x.records.Add(rec.ID, rec)

	if rec.HasEmail() {
		addTo(x.byEmail, strings.ToLower(rec.Email), rec.ID)
	}
	if rec.HasAddress() {
		addTo(x.byAddress, rec.NetworkAddress, rec.ID)
	}
	x.registerVariations(rec.ID)
}

func (x *index) removeOldest() bool {
	_, rec, ok := x.records.RemoveOldest()
	if !ok {
		return false
	}
	x.unindex(rec)
	return true
}

func (x *index) unindex(rec record.Record) {
	if rec.HasEmail() {
		removeFrom(x.byEmail, strings.ToLower(rec.Email), rec.ID)
	}
	if rec.HasAddress() {
		removeFrom(x.byAddress, rec.NetworkAddress, rec.ID)
	}
	for _, form := range x.forms[rec.ID] {
		if x.variations[form] == rec.ID {
			delete(x.variations, form)
		}
	}
	delete(x.forms, rec.ID)
}

func (x *index) registerVariations(id string) {
	for _, form := range variationsOf(id) {
		if form == "" || form == id {
			continue
		}
		if _, taken := x.variations[form]; taken {
			continue
		}
		x.variations[form] = id
		x.forms[id] = append(x.forms[id], form)
	}
}

// variationsOf returns the trimmed, case-folded and digits-only forms of id.
func variationsOf(id string) []string {
	trimmed := strings.TrimSpace(id)
	return []string{trimmed, strings.ToLower(trimmed), digitsOnly(id)}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func addTo(m map[string]idSet, key, id string) {
	set, ok := m[key]
	if !ok {
		set = make(idSet)
		m[key] = set
	}
	set[id] = struct{}{}
}

func removeFrom(m map[string]idSet, key, id string) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(m, key)
	}
}
