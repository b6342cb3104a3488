// Package memstore is an in-process remote.Store. It backs single-host
// setups and the sync tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrJamesThe3rd/finsync/internal/remote"
)

type document struct {
	env          remote.Envelope
	registeredAt time.Time
	lastActive   time.Time
}

type Store struct {
	mu     sync.Mutex
	docs   map[string]*document
	subs   map[string]map[int]chan struct{}
	nextID int
}

func New() *Store {
	return &Store{
		docs: make(map[string]*document),
		subs: make(map[string]map[int]chan struct{}),
	}
}

func (s *Store) Get(_ context.Context, deviceID string) (*remote.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[deviceID]
	if !ok {
		return nil, remote.ErrNotFound
	}

	env := doc.env
	env.Data = append([]byte(nil), doc.env.Data...)

	return &env, nil
}

func (s *Store) doc(deviceID string) *document {
	doc, ok := s.docs[deviceID]
	if !ok {
		doc = &document{}
		s.docs[deviceID] = doc
	}

	return doc
}

func (s *Store) Merge(_ context.Context, deviceID string, f remote.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.doc(deviceID)

	if f.DeviceID != nil {
		doc.env.DeviceID = *f.DeviceID
	}

	if f.Timestamp != nil {
		doc.env.Timestamp = *f.Timestamp
	}

	if f.Data != nil {
		doc.env.Data = append([]byte(nil), f.Data...)
	}

	if f.LastSync != nil {
		doc.env.LastSync = *f.LastSync
	}

	for _, ch := range s.subs[deviceID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}

	return nil
}

func (s *Store) Subscribe(ctx context.Context, deviceID string) (<-chan remote.Update, error) {
	signal := make(chan struct{}, 1)
	signal <- struct{}{}

	s.mu.Lock()
	id := s.nextID
	s.nextID++

	if s.subs[deviceID] == nil {
		s.subs[deviceID] = make(map[int]chan struct{})
	}

	s.subs[deviceID][id] = signal
	s.mu.Unlock()

	out := make(chan remote.Update)

	go func() {
		defer close(out)
		defer func() {
			s.mu.Lock()
			delete(s.subs[deviceID], id)
			s.mu.Unlock()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case <-signal:
			}

			env, err := s.Get(ctx, deviceID)
			if err != nil {
				continue
			}

			select {
			case out <- remote.Update{Envelope: env}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (s *Store) Register(_ context.Context, deviceID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.doc(deviceID)
	doc.lastActive = at

	if doc.registeredAt.IsZero() {
		doc.registeredAt = at
	}

	return nil
}

func (s *Store) Touch(_ context.Context, deviceID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc(deviceID).lastActive = at

	return nil
}

func (s *Store) Devices(_ context.Context) ([]remote.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var devices []remote.Device

	for id, doc := range s.docs {
		if doc.registeredAt.IsZero() {
			continue
		}

		devices = append(devices, remote.Device{ID: id, RegisteredAt: doc.registeredAt, LastActive: doc.lastActive})
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })

	return devices, nil
}
