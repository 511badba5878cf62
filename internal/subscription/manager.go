package subscription

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// subscriberBuffer - сколько событий копится у подписчика, прежде чем новые начнут теряться
const subscriberBuffer = 16

type SubscriptionManager struct {
	mu   sync.Mutex
	subs map[string][]chan Event // threadID -> список каналов подписчиков
}

func NewSubscriptionManager() *SubscriptionManager {
	return &SubscriptionManager{
		subs: make(map[string][]chan Event),
	}
}

func (m *SubscriptionManager) Subscribe(threadID string) (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Event, subscriberBuffer) // буфер, чтобы не блокировался писатель

	m.subs[threadID] = append(m.subs[threadID], ch)

	// функция для отписки
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			subscribers := m.subs[threadID]
			for i, sub := range subscribers {
				if sub == ch {
					// Удаляем подписчика
					m.subs[threadID] = append(subscribers[:i], subscribers[i+1:]...)
					close(ch)
					break
				}
			}
		})
	}

	return ch, cancel
}

func (m *SubscriptionManager) Publish(threadID string, event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sub := range m.subs[threadID] {
		select {
		case sub <- event:
		default:
			// буфер полон - подписчик и так перезагрузит тред по уже накопленным событиям
			log.Warn().Str("thread_id", threadID).Str("kind", string(event.Kind)).Msg("subscriber is slow, event dropped")
		}
	}
}
