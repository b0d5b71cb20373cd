package identity

import (
	"github.com/Sternrassler/crm-cache/pkg/domain"
)

// Index groups records by identity key. Buckets keep insertion order and
// Keys returns keys in first-seen order.
type Index[T Identifiable] struct {
	opts    Options
	keys    []string
	buckets map[string][]T
}

// BuildIndex indexes records by their identity key under opts.
func BuildIndex[T Identifiable](records []T, opts Options) *Index[T] {
	idx := &Index[T]{
		opts:    opts,
		keys:    make([]string, 0, len(records)),
		buckets: make(map[string][]T, len(records)),
	}
	for _, r := range records {
		idx.Add(r)
	}
	return idx
}

// Add inserts r into its bucket.
func (idx *Index[T]) Add(r T) {
	key := Key(r.IdentityFields(), idx.opts)
	if _, ok := idx.buckets[key]; !ok {
		idx.keys = append(idx.keys, key)
	}
	idx.buckets[key] = append(idx.buckets[key], r)
}

// Bucket returns the records stored under key.
func (idx *Index[T]) Bucket(key string) []T {
	return idx.buckets[key]
}

// Keys returns all keys in first-seen order.
func (idx *Index[T]) Keys() []string {
	out := make([]string, len(idx.keys))
	copy(out, idx.keys)
	return out
}

// Len returns the number of distinct keys.
func (idx *Index[T]) Len() int {
	return len(idx.keys)
}

// PotentialDuplicates reports whether a and b have equal identity keys under
// opts. The relation is symmetric and reflexive.
func PotentialDuplicates(a, b Fields, opts Options) bool {
	return Key(a, opts) == Key(b, opts)
}

// Result is the outcome of a duplicate check.
type Result[T Identifiable] struct {
	Duplicate bool
	Key       string
	Match     T
}

// IsDuplicate checks candidate against existing.
//
// The indexed phase looks up the candidate's bucket and confirms each member
// pairwise. If it finds nothing the whole collection is scanned with the same
// pairwise check. The first match wins.
func IsDuplicate[T Identifiable](candidate Fields, existing []T, opts Options) Result[T] {
	key := Key(candidate, opts)

	idx := BuildIndex(existing, opts)
	for _, r := range idx.Bucket(key) {
		if PotentialDuplicates(candidate, r.IdentityFields(), opts) {
			return Result[T]{Duplicate: true, Key: key, Match: r}
		}
	}

	for _, r := range existing {
		if PotentialDuplicates(candidate, r.IdentityFields(), opts) {
			return Result[T]{Duplicate: true, Key: key, Match: r}
		}
	}

	return Result[T]{Key: key}
}

// ListPotentialDuplicates returns every record in existing that matches
// candidate, in collection order.
func ListPotentialDuplicates[T Identifiable](candidate Fields, existing []T, opts Options) []T {
	var matches []T
	for _, r := range existing {
		if PotentialDuplicates(candidate, r.IdentityFields(), opts) {
			matches = append(matches, r)
		}
	}
	return matches
}

// FindDuplicateGroups returns the clusters of records that share an identity
// key. Groups appear in first-seen order; unique records are omitted.
func FindDuplicateGroups[T Identifiable](records []T, opts Options) [][]T {
	idx := BuildIndex(records, opts)

	var groups [][]T
	for _, key := range idx.keys {
		if bucket := idx.buckets[key]; len(bucket) > 1 {
			groups = append(groups, bucket)
		}
	}
	return groups
}

// Described records can report the identifiers shown when a conflict is
// surfaced to the user.
type Described interface {
	Identifiable
	IdentityID() string
}

// AssertUnique returns a CONFLICT BusinessRuleError when candidate duplicates
// a record in existing. Details carry the match's id, name, email and phone.
func AssertUnique[T Described](candidate Fields, existing []T, opts Options) error {
	res := IsDuplicate(candidate, existing, opts)
	if !res.Duplicate {
		return nil
	}

	match := res.Match.IdentityFields()
	return domain.NewError(domain.KindConflict, "a contact with the same identity already exists").
		WithDetails(map[string]any{
			"key":   res.Key,
			"id":    res.Match.IdentityID(),
			"name":  match.Name,
			"email": match.Email,
			"phone": match.Phone,
		})
}
