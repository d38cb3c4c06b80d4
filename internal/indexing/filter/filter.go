// Package filter matches logs against the configured sources of a network.
package filter

import (
	"strings"

	"github.com/vietddude/chainsync/internal/core/domain"
)

type entry struct {
	source    domain.Source
	addresses map[string]struct{}
	topics    map[string]struct{}
}

// Filter routes logs to the sources of one network.
type Filter struct {
	entries []entry
}

// New builds a filter over sources. Addresses and topics compare case-insensitively.
func New(sources []domain.Source) *Filter {
	f := &Filter{entries: make([]entry, 0, len(sources))}
	for _, s := range sources {
		e := entry{
			source:    s,
			addresses: toSet(s.Addresses),
			topics:    toSet(s.Topics),
		}
		f.entries = append(f.entries, e)
	}
	return f
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.ToLower(v)] = struct{}{}
	}
	return set
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

// Sources returns the sources of the filter.
func (f *Filter) Sources() []domain.Source {
	out := make([]domain.Source, len(f.entries))
	for i, e := range f.entries {
		out[i] = e.source
	}
	return out
}

// ActiveAt returns the sources covering the block.
func (f *Filter) ActiveAt(block uint64) []domain.Source {
	var out []domain.Source
	for _, e := range f.entries {
		if e.source.ActiveAt(block) {
			out = append(out, e.source)
		}
	}
	return out
}

// Criteria returns the union of addresses and first topics of the sources
// active at block. A nil list means any value matches. ok is false when no
// source is active.
func (f *Filter) Criteria(block uint64) (addresses, topics []string, ok bool) {
	addrSet, topicSet := map[string]struct{}{}, map[string]struct{}{}
	anyAddress, anyTopic := false, false

	for _, e := range f.entries {
		if !e.source.ActiveAt(block) {
			continue
		}
		ok = true
		if e.addresses == nil {
			anyAddress = true
		}
		for a := range e.addresses {
			addrSet[a] = struct{}{}
		}
		if e.topics == nil {
			anyTopic = true
		}
		for t := range e.topics {
			topicSet[t] = struct{}{}
		}
	}
	if !ok {
		return nil, nil, false
	}
	if !anyAddress {
		addresses = keys(addrSet)
	}
	if !anyTopic {
		topics = keys(topicSet)
	}
	return addresses, topics, true
}

// Match returns the ids of the sources the log belongs to.
func (f *Filter) Match(l domain.Log) []string {
	var ids []string
	for _, e := range f.entries {
		if matches(e, l) {
			ids = append(ids, e.source.ID)
		}
	}
	return ids
}

func matches(e entry, l domain.Log) bool {
	if !e.source.ActiveAt(l.BlockNumber) {
		return false
	}
	if e.addresses != nil {
		if _, ok := e.addresses[strings.ToLower(l.Address)]; !ok {
			return false
		}
	}
	if e.topics != nil {
		if len(l.Topics) == 0 {
			return false
		}
		if _, ok := e.topics[strings.ToLower(l.Topics[0])]; !ok {
			return false
		}
	}
	return true
}
