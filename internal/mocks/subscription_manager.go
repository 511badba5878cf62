package mocks

import (
	"sync"

	"github.com/VitaminP8/commentree/internal/subscription"
)

// MockSubscriptionManager доставляет события синхронно и запоминает их для проверок
type MockSubscriptionManager struct {
	mu     sync.Mutex
	subs   map[string][]chan subscription.Event // threadID -> список каналов подписчиков
	events map[string][]subscription.Event      // Для отслеживания в тестах
}

func NewMockSubscriptionManager() *MockSubscriptionManager {
	return &MockSubscriptionManager{
		subs:   make(map[string][]chan subscription.Event),
		events: make(map[string][]subscription.Event),
	}
}

func (m *MockSubscriptionManager) Subscribe(threadID string) (<-chan subscription.Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan subscription.Event, 16)
	m.subs[threadID] = append(m.subs[threadID], ch)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			subscribers := m.subs[threadID]
			for i, sub := range subscribers {
				if sub == ch {
					m.subs[threadID] = append(subscribers[:i], subscribers[i+1:]...)
					close(ch)
					break
				}
			}
		})
	}

	return ch, cancel
}

func (m *MockSubscriptionManager) Publish(threadID string, event subscription.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sub := range m.subs[threadID] {
		select {
		case sub <- event:
		default:
		}
	}

	// Сохраняем событие для тестирования
	m.events[threadID] = append(m.events[threadID], event)
}

// GetEventsForThread возвращает все опубликованные события треда
func (m *MockSubscriptionManager) GetEventsForThread(threadID string) []subscription.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]subscription.Event(nil), m.events[threadID]...)
}

// LastEvent - последнее событие треда
func (m *MockSubscriptionManager) LastEvent(threadID string) (subscription.Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := m.events[threadID]
	if len(events) == 0 {
		return subscription.Event{}, false
	}
	return events[len(events)-1], true
}
