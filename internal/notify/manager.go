package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("notification not found")

// Notification is a persisted, user-visible record of an Event.
type Notification struct {
	ID        uuid.UUID       `json:"id"`
	Kind      Kind            `json:"kind"`
	Title     string          `json:"title"`
	Content   string          `json:"content"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
	Read      bool            `json:"read"`
}

// Event decodes the typed payload of n.
func (n *Notification) Event() (Event, error) {
	return Decode(n.Kind, n.Payload)
}

type ListOptions struct {
	UnreadOnly bool
	Kind       *Kind
	Limit      int
}

//go:generate mockgen -source=manager.go -destination=repository_mock.go -package=notify
type Repository interface {
	InsertNotification(ctx context.Context, n *Notification) error
	ListNotifications(ctx context.Context, opts ListOptions) ([]*Notification, error)
	MarkAsRead(ctx context.Context, id uuid.UUID) (*Notification, error)
	MarkAllAsRead(ctx context.Context) ([]*Notification, error)
	ClearNotifications(ctx context.Context) error
}

// Listener receives every notification created or updated by the Manager.
type Listener func(n *Notification)

// Manager persists notifications and fans them out to in-process listeners.
type Manager struct {
	repo Repository
	now  func() time.Time

	mu        sync.RWMutex
	nextID    int
	listeners map[int]Listener
}

func NewManager(repo Repository) *Manager {
	return &Manager{
		repo:      repo,
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
}

func (m *Manager) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", e.Kind(), err)
	}

	n := &Notification{
		ID:        uuid.New(),
		Kind:      e.Kind(),
		Title:     e.title(),
		Content:   e.content(),
		Payload:   payload,
		CreatedAt: m.now().UTC(),
	}

	if err := m.repo.InsertNotification(ctx, n); err != nil {
		return fmt.Errorf("storing notification: %w", err)
	}

	m.broadcast(n)

	return nil
}

// Subscribe registers fn and returns a function that removes it again.
func (m *Manager) Subscribe(fn Listener) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

func (m *Manager) List(ctx context.Context, opts ListOptions) ([]*Notification, error) {
	return m.repo.ListNotifications(ctx, opts)
}

func (m *Manager) MarkAsRead(ctx context.Context, id uuid.UUID) (*Notification, error) {
	n, err := m.repo.MarkAsRead(ctx, id)
	if err != nil {
		return nil, err
	}

	m.broadcast(n)

	return n, nil
}

func (m *Manager) MarkAllAsRead(ctx context.Context) error {
	updated, err := m.repo.MarkAllAsRead(ctx)
	if err != nil {
		return err
	}

	for _, n := range updated {
		m.broadcast(n)
	}

	return nil
}

func (m *Manager) Clear(ctx context.Context) error {
	return m.repo.ClearNotifications(ctx)
}

func (m *Manager) broadcast(n *Notification) {
	m.mu.RLock()
	listeners := make([]Listener, 0, len(m.listeners))

	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.RUnlock()

	for _, fn := range listeners {
		fn(n)
	}
}
