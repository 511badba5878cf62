package subscription

type Manager interface {
	Subscribe(threadID string) (<-chan Event, func())
	Publish(threadID string, event Event)
}
