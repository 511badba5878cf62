package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/VitaminP8/commentree/internal/document"
)

type entry struct {
	data      document.Fields
	createdAt time.Time
	updatedAt time.Time
	seq       int // порядок вставки, для одинакового createdAt
}

// DocumentMemoryStorage - документное хранилище в памяти процесса.
type DocumentMemoryStorage struct {
	mu      sync.Mutex
	docs    map[string]*entry // path -> документ
	nextSeq int
	now     func() time.Time
}

func NewDocumentMemoryStorage() *DocumentMemoryStorage {
	return &DocumentMemoryStorage{
		docs: make(map[string]*entry),
		now:  time.Now,
	}
}

// WithClock подменяет часы хранилища (для тестов).
func (s *DocumentMemoryStorage) WithClock(now func() time.Time) *DocumentMemoryStorage {
	s.now = now
	return s
}

func (s *DocumentMemoryStorage) Get(ctx context.Context, path string) (*document.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.docs[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, document.ErrNotFound)
	}
	return snapshot(path, e), nil
}

func (s *DocumentMemoryStorage) Set(ctx context.Context, path string, data document.Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	_, fields, err := document.Encode(data, now)
	if err != nil {
		return err
	}

	if e, ok := s.docs[path]; ok {
		e.data = fields
		e.updatedAt = now
		return nil
	}
	s.insert(path, fields, now)
	return nil
}

func (s *DocumentMemoryStorage) Add(ctx context.Context, collection string, data document.Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	_, fields, err := document.Encode(data, now)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	s.insert(document.Join(collection, id), fields, now)
	return id, nil
}

func (s *DocumentMemoryStorage) Update(ctx context.Context, path string, updates document.Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.docs[path]
	if !ok {
		return fmt.Errorf("%s: %w", path, document.ErrNotFound)
	}

	now := s.now()
	fields, err := document.Apply(e.data, updates, now)
	if err != nil {
		return err
	}
	e.data = fields
	e.updatedAt = now
	return nil
}

func (s *DocumentMemoryStorage) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[path]; !ok {
		return fmt.Errorf("%s: %w", path, document.ErrNotFound)
	}
	delete(s.docs, path)
	return nil
}

func (s *DocumentMemoryStorage) List(ctx context.Context, collection string) ([]*document.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type item struct {
		path string
		e    *entry
	}
	var items []item
	for path, e := range s.docs {
		if parent, _ := document.Split(path); parent == collection {
			items = append(items, item{path: path, e: e})
		}
	}

	// Сортируем по createdAt (по возрастанию), при равенстве - по порядку вставки
	sort.Slice(items, func(i, j int) bool {
		if items[i].e.createdAt.Equal(items[j].e.createdAt) {
			return items[i].e.seq < items[j].e.seq
		}
		return items[i].e.createdAt.Before(items[j].e.createdAt)
	})

	out := make([]*document.Snapshot, 0, len(items))
	for _, it := range items {
		out = append(out, snapshot(it.path, it.e))
	}
	return out, nil
}

func (s *DocumentMemoryStorage) Count(ctx context.Context, collection string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for path := range s.docs {
		if parent, _ := document.Split(path); parent == collection {
			n++
		}
	}
	return n, nil
}

func (s *DocumentMemoryStorage) insert(path string, fields document.Fields, now time.Time) {
	s.nextSeq++
	s.docs[path] = &entry{
		data:      fields,
		createdAt: now,
		updatedAt: now,
		seq:       s.nextSeq,
	}
}

// snapshot копирует документ, чтобы вызывающий код не менял данные хранилища
func snapshot(path string, e *entry) *document.Snapshot {
	data, _ := document.Normalize(e.data)
	_, id := document.Split(path)
	return &document.Snapshot{
		ID:         id,
		Path:       path,
		Data:       data,
		CreateTime: e.createdAt,
		UpdateTime: e.updatedAt,
	}
}
