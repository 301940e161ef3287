package bot

import (
	"slices"
	"strings"
)

// AllowList is the fixed, ordered set of author identifiers permitted to use
// the assistant. It is read-only after construction.
type AllowList struct {
	ids []string
}

// ParseAllowList splits a comma-separated value. Entries are kept verbatim;
// matching is exact and case-sensitive.
func ParseAllowList(csv string) AllowList {
	if csv == "" {
		return AllowList{}
	}
	return AllowList{ids: strings.Split(csv, ",")}
}

func NewAllowList(ids ...string) AllowList {
	return AllowList{ids: slices.Clone(ids)}
}

func (a AllowList) Contains(id string) bool {
	return slices.Contains(a.ids, id)
}

func (a AllowList) Len() int { return len(a.ids) }

// IDs returns a copy of the entries in configuration order.
func (a AllowList) IDs() []string { return slices.Clone(a.ids) }
