package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// Repository implements simplemedia.UserRepository and
// simplemedia.ContentRepository using in-memory storage
type Repository struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]*simplemedia.User
	byHandle map[string]uuid.UUID
	contents map[uuid.UUID]*simplemedia.Content
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		users:    make(map[uuid.UUID]*simplemedia.User),
		byHandle: make(map[string]uuid.UUID),
		contents: make(map[uuid.UUID]*simplemedia.Content),
	}
}

// User operations

// CreateUser checks and claims the handle under one lock, which is what
// makes handle uniqueness hold under concurrent registration.
func (r *Repository) CreateUser(ctx context.Context, user *simplemedia.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byHandle[user.Handle]; taken {
		return simplemedia.ErrHandleTaken
	}

	userCopy := *user
	r.users[user.ID] = &userCopy
	r.byHandle[user.Handle] = user.ID
	return nil
}

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*simplemedia.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[id]
	if !exists {
		return nil, simplemedia.ErrUserNotFound
	}
	userCopy := *user
	return &userCopy, nil
}

func (r *Repository) GetUserByHandle(ctx context.Context, handle string) (*simplemedia.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byHandle[handle]
	if !exists {
		return nil, simplemedia.ErrUserNotFound
	}
	userCopy := *r.users[id]
	return &userCopy, nil
}

// Content operations

func (r *Repository) CreateContent(ctx context.Context, content *simplemedia.Content) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.contents[content.ID]; exists {
		return simplemedia.ErrConflict
	}

	contentCopy := *content
	r.contents[content.ID] = &contentCopy
	return nil
}

func (r *Repository) GetContent(ctx context.Context, id uuid.UUID) (*simplemedia.Content, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	content, exists := r.contents[id]
	if !exists {
		return nil, simplemedia.ErrContentNotFound
	}
	contentCopy := *content
	return &contentCopy, nil
}

func (r *Repository) UpdateContent(ctx context.Context, content *simplemedia.Content, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.contents[content.ID]
	if !exists {
		return simplemedia.ErrContentNotFound
	}
	if current.Version != expectedVersion {
		return simplemedia.ErrVersionConflict
	}

	content.Version = expectedVersion + 1
	contentCopy := *content
	r.contents[content.ID] = &contentCopy
	return nil
}

func (r *Repository) DeleteContent(ctx context.Context, id uuid.UUID) (*simplemedia.Content, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	content, exists := r.contents[id]
	if !exists {
		return nil, simplemedia.ErrContentNotFound
	}
	delete(r.contents, id)
	return content, nil
}

func (r *Repository) ListContent(ctx context.Context, req simplemedia.ListContentRequest) ([]*simplemedia.Content, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*simplemedia.Content
	for _, c := range r.contents {
		if req.OwnerID != nil && c.OwnerID != *req.OwnerID {
			continue
		}
		if req.ContentType != "" && c.ContentType != req.ContentType {
			continue
		}
		contentCopy := *c
		matched = append(matched, &contentCopy)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if req.Offset >= len(matched) {
		return []*simplemedia.Content{}, nil
	}
	matched = matched[req.Offset:]
	if req.Limit > 0 && req.Limit < len(matched) {
		matched = matched[:req.Limit]
	}
	return matched, nil
}

// Ping always succeeds
func (r *Repository) Ping(ctx context.Context) error {
	return nil
}
