package cart

type EventKind string

const (
	EventItemAdded       EventKind = "item_added"
	EventItemRemoved     EventKind = "item_removed"
	EventQuantityUpdated EventKind = "quantity_updated"
	EventCleared         EventKind = "cleared"
)

// Event describes one accepted mutation.
//
// For item_added, Item is the line after the add and Quantity the number of
// units added; Merged is true when an existing line absorbed them. For
// quantity_updated, Quantity is the new absolute quantity. Item is zero for
// cleared.
type Event struct {
	Kind     EventKind
	Item     LineItem
	Quantity int
	Merged   bool
}

// Listener is called synchronously, before the mutating call returns.
// A listener may read the store but must not mutate it.
type Listener func(Event)

type subscription struct {
	id int
	fn Listener
}

// Subscribe registers l for every subsequent event and returns a function
// that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.lmu.Lock()
	defer s.lmu.Unlock()

	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscription{id: id, fn: l})

	return func() {
		s.lmu.Lock()
		defer s.lmu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) publish(ev Event) {
	s.lmu.Lock()
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.lmu.Unlock()

	for _, sub := range subs {
		sub.fn(ev)
	}
}
