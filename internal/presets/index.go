package presets

import (
	"slices"
	"sort"
)

// CombinationIndex maps dimension keys to template records. It is built once
// per load and never mutated afterwards, so it is safe for concurrent readers.
type CombinationIndex struct {
	buckets    map[DimensionKey][]TemplateRecord
	bySubject  map[string][]TemplateRecord
	byModifier map[string][]TemplateRecord
	all        []TemplateRecord
}

// Build indexes records by their own dimension key. Every bucket and posting
// list is ordered by record id.
func Build(records []TemplateRecord) *CombinationIndex {
	all := slices.Clone(records)
	sort.SliceStable(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	ix := &CombinationIndex{
		buckets:    make(map[DimensionKey][]TemplateRecord, len(all)),
		bySubject:  make(map[string][]TemplateRecord),
		byModifier: make(map[string][]TemplateRecord),
		all:        all,
	}

	// all is sorted, so appending in order keeps every list sorted.
	for _, rec := range all {
		key := rec.Key()
		ix.buckets[key] = append(ix.buckets[key], rec)
		ix.bySubject[rec.SubjectRef] = append(ix.bySubject[rec.SubjectRef], rec)
		if rec.ModifierRef != "" {
			ix.byModifier[rec.ModifierRef] = append(ix.byModifier[rec.ModifierRef], rec)
		}
	}
	return ix
}

// Lookup returns a copy of the bucket for key.
func (ix *CombinationIndex) Lookup(key DimensionKey) []TemplateRecord {
	if ix == nil {
		return nil
	}
	return slices.Clone(ix.buckets[key])
}

// Len is the number of indexed records.
func (ix *CombinationIndex) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.all)
}

// KeyCount is the number of distinct dimension keys.
func (ix *CombinationIndex) KeyCount() int {
	if ix == nil {
		return 0
	}
	return len(ix.buckets)
}

// Subjects lists distinct subject refs in sorted order.
func (ix *CombinationIndex) Subjects() []string {
	if ix == nil {
		return nil
	}
	out := make([]string, 0, len(ix.bySubject))
	for s := range ix.bySubject {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Modifiers lists distinct non-empty modifier refs in sorted order.
func (ix *CombinationIndex) Modifiers() []string {
	if ix == nil {
		return nil
	}
	out := make([]string, 0, len(ix.byModifier))
	for m := range ix.byModifier {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func (ix *CombinationIndex) subjectRecords(subject string) []TemplateRecord {
	if ix == nil {
		return nil
	}
	return ix.bySubject[subject]
}

func (ix *CombinationIndex) modifierRecords(modifier string) []TemplateRecord {
	if ix == nil || modifier == "" {
		return nil
	}
	return ix.byModifier[modifier]
}

func (ix *CombinationIndex) records() []TemplateRecord {
	if ix == nil {
		return nil
	}
	return ix.all
}
