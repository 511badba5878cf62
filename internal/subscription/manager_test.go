package subscription

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionManager_Subscribe(t *testing.T) {
	t.Run("Should create a subscription channel", func(t *testing.T) {
		manager := NewSubscriptionManager()
		threadID := "123"

		ch, cancel := manager.Subscribe(threadID)
		assert.NotNil(t, ch)
		assert.NotNil(t, cancel)

		manager.mu.Lock()
		subscribers, exists := manager.subs[threadID]
		manager.mu.Unlock()
		assert.True(t, exists)
		assert.Len(t, subscribers, 1)

		// Вызываем отмену подписки
		cancel()

		manager.mu.Lock()
		subscribers, exists = manager.subs[threadID]
		manager.mu.Unlock()
		assert.True(t, exists)
		assert.Len(t, subscribers, 0)
	})

	t.Run("Multiple subscriptions to the same post", func(t *testing.T) {
		manager := NewSubscriptionManager()
		threadID := "123"

		// Создаем 3 подписки
		_, cancel1 := manager.Subscribe(threadID)
		_, cancel2 := manager.Subscribe(threadID)
		_, cancel3 := manager.Subscribe(threadID)

		manager.mu.Lock()
		subscribers, exists := manager.subs[threadID]
		manager.mu.Unlock()
		assert.True(t, exists)
		assert.Len(t, subscribers, 3)

		// Отменяем вторую подписку
		cancel2()

		manager.mu.Lock()
		subscribers, exists = manager.subs[threadID]
		manager.mu.Unlock()
		assert.True(t, exists)
		assert.Len(t, subscribers, 2)

		// Отменяем остальные подписки
		cancel1()
		cancel3()

		manager.mu.Lock()
		subscribers, exists = manager.subs[threadID]
		manager.mu.Unlock()
		assert.True(t, exists)
		assert.Len(t, subscribers, 0)
	})

	t.Run("Subscriptions to different posts", func(t *testing.T) {
		manager := NewSubscriptionManager()

		// Создаем подписки на разные посты
		_, cancel1 := manager.Subscribe("thread1")
		_, cancel2 := manager.Subscribe("thread2")
		_, cancel3 := manager.Subscribe("thread3")

		manager.mu.Lock()
		assert.Len(t, manager.subs, 3)
		manager.mu.Unlock()

		// Отменяем все подписки
		cancel1()
		cancel2()
		cancel3()

		manager.mu.Lock()
		assert.Len(t, manager.subs["thread1"], 0)
		assert.Len(t, manager.subs["thread2"], 0)
		assert.Len(t, manager.subs["thread3"], 0)
		manager.mu.Unlock()
	})
}

func TestSubscriptionManager_Publish(t *testing.T) {
	t.Run("Should send event to subscribers", func(t *testing.T) {
		manager := NewSubscriptionManager()
		threadID := "123"

		ch, cancel := manager.Subscribe(threadID)
		defer cancel()

		event := Event{
			ThreadID: threadID,
			Kind:     KindPosted,
			Path:     "thread/" + threadID + "/comments/456",
			ActorID:  "789",
		}

		// Публикуем событие
		manager.Publish(threadID, event)

		// Проверяем, что событие получено
		select {
		case received := <-ch:
			assert.Equal(t, event, received)
		case <-time.After(time.Second):
			t.Fatal("Timed out waiting for event")
		}
	})

	t.Run("Multiple subscribers should all receive the event", func(t *testing.T) {
		manager := NewSubscriptionManager()
		threadID := "123"

		ch1, cancel1 := manager.Subscribe(threadID)
		ch2, cancel2 := manager.Subscribe(threadID)
		ch3, cancel3 := manager.Subscribe(threadID)
		defer cancel1()
		defer cancel2()
		defer cancel3()

		event := Event{
			ThreadID: threadID,
			Kind:     KindPosted,
			Path:     "thread/" + threadID + "/comments/456",
			ActorID:  "789",
		}

		manager.Publish(threadID, event)

		for i, ch := range []<-chan Event{ch1, ch2, ch3} {
			select {
			case received := <-ch:
				assert.Equal(t, event, received, "Subscriber %d did not receive correct event", i+1)
			case <-time.After(time.Second):
				t.Fatalf("Subscriber %d timed out waiting for event", i+1)
			}
		}
	})

	t.Run("Should only send to subscribers of the specific thread", func(t *testing.T) {
		manager := NewSubscriptionManager()

		ch1, cancel1 := manager.Subscribe("thread1")
		ch2, cancel2 := manager.Subscribe("thread2")
		defer cancel1()
		defer cancel2()

		event := Event{
			ThreadID: "thread1",
			Kind:     KindPosted,
			ActorID:  "789",
		}

		manager.Publish("thread1", event)

		select {
		case received := <-ch1:
			assert.Equal(t, event, received)
		case <-time.After(time.Second):
			t.Fatal("Subscriber of thread1 timed out waiting for event")
		}

		select {
		case <-ch2:
			t.Fatal("Subscriber of thread2 should not receive the event")
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("Publishing to a thread with no subscribers should not panic", func(t *testing.T) {
		manager := NewSubscriptionManager()

		event := Event{
			ThreadID: "thread1",
			Kind:     KindPosted,
			ActorID:  "789",
		}

		assert.NotPanics(t, func() {
			manager.Publish("thread1", event)
		})
	})
}

func TestSubscriptionManager_SlowSubscriber(t *testing.T) {
	t.Run("Publish does not wait for a full subscriber", func(t *testing.T) {
		manager := NewSubscriptionManager()

		slow, cancelSlow := manager.Subscribe("busy")
		defer cancelSlow()
		other, cancelOther := manager.Subscribe("quiet")
		defer cancelOther()

		start := time.Now()
		for i := 0; i < subscriberBuffer+10; i++ {
			manager.Publish("busy", Event{ThreadID: "busy", Kind: KindLiked})
		}
		manager.Publish("quiet", Event{ThreadID: "quiet", Kind: KindPosted})
		assert.Less(t, time.Since(start), 200*time.Millisecond)

		select {
		case received := <-other:
			assert.Equal(t, KindPosted, received.Kind)
		case <-time.After(time.Second):
			t.Fatal("Subscriber of another thread timed out waiting for event")
		}

		// в буфере остались только первые события, остальные отброшены
		assert.Len(t, slow, subscriberBuffer)
	})
}

func TestSubscriptionManager_Concurrent(t *testing.T) {
	t.Run("Concurrent subscriptions and publications", func(t *testing.T) {
		manager := NewSubscriptionManager()
		threadID := "123"

		// Количество подписчиков и публикаций
		numSubscribers := 10
		numPublications := 5

		var wg sync.WaitGroup

		// Создаем подписчиков
		chans := make([]<-chan Event, numSubscribers)
		cancels := make([]func(), numSubscribers)

		// Счетчик полученных событий для каждого подписчика
		received := make([]int, numSubscribers)

		var mu sync.Mutex

		for i := 0; i < numSubscribers; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				ch, cancel := manager.Subscribe(threadID)
				chans[idx] = ch
				cancels[idx] = cancel

				// Запускаем горутину для чтения из канала
				go func(idx int, ch <-chan Event) {
					for event := range ch {
						require.Equal(t, threadID, event.ThreadID)
						mu.Lock()
						received[idx]++
						mu.Unlock()
					}
				}(idx, ch)
			}(i)
		}

		// Ожидаем завершения подписок
		wg.Wait()

		// Публикуем события
		for i := 0; i < numPublications; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				event := Event{
					ThreadID: threadID,
					Kind:     KindLiked,
					Path:     "thread/" + threadID + "/comments/" + strconv.Itoa(1000+idx),
				}
				manager.Publish(threadID, event)
			}(i)
		}

		wg.Wait()

		// Даем время на обработку всех сообщений
		time.Sleep(1000 * time.Millisecond)

		// Отменяем все подписки
		for _, cancel := range cancels {
			cancel()
		}

		// Проверяем, что все подписчики получили все публикации
		mu.Lock()
		for i := 0; i < numSubscribers; i++ {
			assert.Equal(t, numPublications, received[i], "Subscriber %d did not receive all publications", i)
		}
		mu.Unlock()
	})

	t.Run("Concurrent subscribes and unsubscribes", func(t *testing.T) {
		manager := NewSubscriptionManager()
		threadID := "123"

		var wg sync.WaitGroup
		numOperations := 100

		for i := 0; i < numOperations; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()

				// Подписываемся
				ch, cancel := manager.Subscribe(threadID)

				// Небольшая задержка
				time.Sleep(5 * time.Millisecond)

				// Отписываемся
				cancel()

				// Проверяем, что канал закрыт
				_, ok := <-ch
				assert.False(t, ok, "Channel should be closed after cancel")
			}()
		}

		wg.Wait()

		// Проверяем, что все подписки были корректно удалены
		manager.mu.Lock()
		assert.Len(t, manager.subs[threadID], 0)
		manager.mu.Unlock()
	})
}

func TestSubscriptionManager_CancelTwice(t *testing.T) {
	manager := NewSubscriptionManager()

	_, cancel := manager.Subscribe("123")
	cancel()

	assert.NotPanics(t, func() {
		cancel()
	})
}
