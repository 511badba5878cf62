package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/VitaminP8/commentree/internal/document"
	"github.com/VitaminP8/commentree/internal/storage/memory"
)

// Операции документного хранилища, на которые можно навесить ошибку
const (
	OpGet    = "get"
	OpSet    = "set"
	OpAdd    = "add"
	OpUpdate = "update"
	OpDelete = "delete"
	OpList   = "list"
	OpCount  = "count"
)

type failure struct {
	op     string
	prefix string
	err    error
}

// MockDocumentStorage - хранилище в памяти, которое умеет падать на заданных операциях
type MockDocumentStorage struct {
	*memory.DocumentMemoryStorage

	mu       sync.Mutex
	failures []failure
	calls    map[string]int
}

func NewMockDocumentStorage() *MockDocumentStorage {
	return &MockDocumentStorage{
		DocumentMemoryStorage: memory.NewDocumentMemoryStorage(),
		calls:                 make(map[string]int),
	}
}

// FailOn заставляет операцию op падать с ошибкой err для путей с префиксом prefix
// (пустой префикс - для всех путей)
func (m *MockDocumentStorage) FailOn(op, prefix string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, failure{op: op, prefix: prefix, err: err})
}

// Heal убирает все навешенные ошибки
func (m *MockDocumentStorage) Heal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = nil
}

// Calls - сколько раз вызывалась операция (для проверок в тестах)
func (m *MockDocumentStorage) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *MockDocumentStorage) check(op, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls[op]++
	for _, f := range m.failures {
		if f.op == op && strings.HasPrefix(path, f.prefix) {
			return f.err
		}
	}
	return nil
}

func (m *MockDocumentStorage) Get(ctx context.Context, path string) (*document.Snapshot, error) {
	if err := m.check(OpGet, path); err != nil {
		return nil, err
	}
	return m.DocumentMemoryStorage.Get(ctx, path)
}

func (m *MockDocumentStorage) Set(ctx context.Context, path string, data document.Fields) error {
	if err := m.check(OpSet, path); err != nil {
		return err
	}
	return m.DocumentMemoryStorage.Set(ctx, path, data)
}

func (m *MockDocumentStorage) Add(ctx context.Context, collection string, data document.Fields) (string, error) {
	if err := m.check(OpAdd, collection); err != nil {
		return "", err
	}
	return m.DocumentMemoryStorage.Add(ctx, collection, data)
}

func (m *MockDocumentStorage) Update(ctx context.Context, path string, updates document.Fields) error {
	if err := m.check(OpUpdate, path); err != nil {
		return err
	}
	return m.DocumentMemoryStorage.Update(ctx, path, updates)
}

func (m *MockDocumentStorage) Delete(ctx context.Context, path string) error {
	if err := m.check(OpDelete, path); err != nil {
		return err
	}
	return m.DocumentMemoryStorage.Delete(ctx, path)
}

func (m *MockDocumentStorage) List(ctx context.Context, collection string) ([]*document.Snapshot, error) {
	if err := m.check(OpList, collection); err != nil {
		return nil, err
	}
	return m.DocumentMemoryStorage.List(ctx, collection)
}

func (m *MockDocumentStorage) Count(ctx context.Context, collection string) (int, error) {
	if err := m.check(OpCount, collection); err != nil {
		return 0, err
	}
	return m.DocumentMemoryStorage.Count(ctx, collection)
}
