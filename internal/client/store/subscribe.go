package store

import (
	"context"

	"github.com/dmitrijs2005/contactsync/internal/models"
)

// Subscribe returns a channel carrying the visible list: once immediately and
// again after every mutation. Only the latest list is kept for a slow reader.
// The channel is closed when ctx is done.
func (s *SQLiteStore) Subscribe(ctx context.Context) <-chan []*models.Contact {
	ch := make(chan []*models.Contact, 1)

	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	if list, err := s.ListVisible(ctx); err == nil {
		offer(ch, list)
	}
	s.subsMu.Unlock()

	go func() {
		<-ctx.Done()
		s.subsMu.Lock()
		delete(s.subs, ch)
		close(ch)
		s.subsMu.Unlock()
	}()
	return ch
}

func (s *SQLiteStore) publish(ctx context.Context) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	if len(s.subs) == 0 {
		return
	}
	list, err := s.ListVisible(ctx)
	if err != nil {
		return
	}
	for ch := range s.subs {
		offer(ch, list)
	}
}

// offer replaces whatever list is still waiting in ch.
func offer(ch chan []*models.Contact, list []*models.Contact) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- list:
	default:
	}
}
