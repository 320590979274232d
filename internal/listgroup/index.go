package listgroup

import (
	"maps"
	"slices"

	"github.com/tphakala/mcmigrate/internal/mailchimp"
)

// Entry is an interest together with the event and list it was fetched for.
type Entry struct {
	EventID  int
	ListID   string
	Interest mailchimp.Interest
}

// interestQueue is a FIFO of interests sharing one name.
type interestQueue struct {
	items []mailchimp.Interest
}

func (q *interestQueue) push(in mailchimp.Interest) {
	q.items = append(q.items, in)
}

func (q *interestQueue) pop() (mailchimp.Interest, bool) {
	if len(q.items) == 0 {
		return mailchimp.Interest{}, false
	}
	in := q.items[0]
	q.items[0] = mailchimp.Interest{}
	q.items = q.items[1:]
	return in, true
}

// remove drops the first interest with id, keeping the order of the rest.
func (q *interestQueue) remove(id string) bool {
	i := slices.IndexFunc(q.items, func(in mailchimp.Interest) bool { return in.ID == id })
	if i < 0 {
		return false
	}
	q.items = slices.Delete(q.items, i, i+1)
	return true
}

// InterestIndex maps event -> list -> interest name -> FIFO of interests.
// Popped interests are never put back. It is not safe for concurrent use.
type InterestIndex struct {
	events map[int]map[string]map[string]*interestQueue
	added  int
	left   int
}

// NewInterestIndex returns an empty index.
func NewInterestIndex() *InterestIndex {
	return &InterestIndex{events: make(map[int]map[string]map[string]*interestQueue)}
}

// Add appends in to the queue for (eventID, listID, in.Name).
func (x *InterestIndex) Add(eventID int, listID string, in mailchimp.Interest) {
	lists, ok := x.events[eventID]
	if !ok {
		lists = make(map[string]map[string]*interestQueue)
		x.events[eventID] = lists
	}
	names, ok := lists[listID]
	if !ok {
		names = make(map[string]*interestQueue)
		lists[listID] = names
	}
	q, ok := names[in.Name]
	if !ok {
		q = &interestQueue{}
		names[in.Name] = q
	}
	q.push(in)
	x.added++
	x.left++
}

// Pop removes and returns the oldest interest named name under
// (eventID, listID).
func (x *InterestIndex) Pop(eventID int, listID, name string) (mailchimp.Interest, bool) {
	q := x.events[eventID][listID][name]
	if q == nil {
		return mailchimp.Interest{}, false
	}
	in, ok := q.pop()
	if ok {
		x.left--
	}
	return in, ok
}

// Claim removes the interest with interestID from (eventID, listID),
// whatever its name. It is used to replay claims made by an earlier process.
func (x *InterestIndex) Claim(eventID int, listID, interestID string) bool {
	for _, q := range x.events[eventID][listID] {
		if q.remove(interestID) {
			x.left--
			return true
		}
	}
	return false
}

// Populated reports whether any interest was ever added.
// It stays true after every interest has been popped.
func (x *InterestIndex) Populated() bool {
	return x.added > 0
}

// Size returns the number of interests ever added.
func (x *InterestIndex) Size() int {
	return x.added
}

// Len returns the number of interests still in the index.
func (x *InterestIndex) Len() int {
	return x.left
}

// Remaining returns the interests still in the index ordered by event,
// list and name, each queue in FIFO order.
func (x *InterestIndex) Remaining() []Entry {
	out := make([]Entry, 0, x.left)
	for _, eventID := range slices.Sorted(maps.Keys(x.events)) {
		lists := x.events[eventID]
		for _, listID := range slices.Sorted(maps.Keys(lists)) {
			names := lists[listID]
			for _, name := range slices.Sorted(maps.Keys(names)) {
				for _, in := range names[name].items {
					out = append(out, Entry{EventID: eventID, ListID: listID, Interest: in})
				}
			}
		}
	}
	return out
}

// Reset drops every entry.
func (x *InterestIndex) Reset() {
	x.events = make(map[int]map[string]map[string]*interestQueue)
	x.added = 0
	x.left = 0
}

type consumedKey struct {
	eventID    int
	listID     string
	interestID string
}

// ConsumedSet records interests already written for an (event, list),
// either claimed by a legacy row or inserted as not selected.
type ConsumedSet struct {
	seen map[consumedKey]struct{}
}

// NewConsumedSet returns an empty set.
func NewConsumedSet() *ConsumedSet {
	return &ConsumedSet{seen: make(map[consumedKey]struct{})}
}

// Add marks an interest as written. It returns false if it already was.
func (s *ConsumedSet) Add(eventID int, listID, interestID string) bool {
	k := consumedKey{eventID, listID, interestID}
	if _, ok := s.seen[k]; ok {
		return false
	}
	s.seen[k] = struct{}{}
	return true
}

// Contains reports whether an interest was written.
func (s *ConsumedSet) Contains(eventID int, listID, interestID string) bool {
	_, ok := s.seen[consumedKey{eventID, listID, interestID}]
	return ok
}

// Len returns the number of written interests.
func (s *ConsumedSet) Len() int {
	return len(s.seen)
}
