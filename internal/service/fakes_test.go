package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"

	"wp-user-migration/internal/domain"
	"wp-user-migration/internal/media"
	"wp-user-migration/internal/repository"
)

// fakeStore simula ambas bases en memoria. Es seguro para workers concurrentes.
type fakeStore struct {
	mu          sync.Mutex
	legacy      map[int64]domain.LegacyUser
	wpUsers     map[int64]domain.WPUser
	meta        map[int64][]domain.UserMeta
	attachments map[int64]int64
	nextID      int64
	updates     int
	createErr   error

	opened   atomic.Int32
	released atomic.Int32
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		legacy:      make(map[int64]domain.LegacyUser),
		wpUsers:     make(map[int64]domain.WPUser),
		meta:        make(map[int64][]domain.UserMeta),
		attachments: make(map[int64]int64),
		nextID:      100,
	}
}

func (s *fakeStore) Open(_ context.Context) (repository.Session, error) {
	s.opened.Add(1)
	return &fakeSession{store: s}, nil
}

func (s *fakeStore) metaValue(userID int64, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.meta[userID] {
		if m.Key == key {
			return m.Value, true
		}
	}
	return "", false
}

type fakeSession struct {
	store *fakeStore
}

func (f *fakeSession) LegacyUsers() repository.LegacyUserRepository { return fakeLegacyRepo{f.store} }
func (f *fakeSession) WPUsers() repository.WPUserRepository         { return fakeWPRepo{f.store} }
func (f *fakeSession) Release()                                     { f.store.released.Add(1) }

type fakeLegacyRepo struct {
	store *fakeStore
}

func (r fakeLegacyRepo) CountSince(context.Context, time.Time) (int, error) {
	return 0, errors.New("not used")
}

func (r fakeLegacyRepo) ListIDsSince(context.Context, time.Time, int, int) ([]int64, error) {
	return nil, errors.New("not used")
}

func (r fakeLegacyRepo) GetByID(_ context.Context, id int64) (domain.LegacyUser, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	u, ok := r.store.legacy[id]
	if !ok {
		return domain.LegacyUser{}, pgx.ErrNoRows
	}
	return u, nil
}

type fakeWPRepo struct {
	store *fakeStore
}

func (r fakeWPRepo) FindByLegacyID(_ context.Context, legacyID int64) (domain.WPUser, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	want := strconv.FormatInt(legacyID, 10)
	for userID, metas := range r.store.meta {
		for _, m := range metas {
			if m.Key == domain.MetaLegacyUserID && m.Value == want {
				return r.store.wpUsers[userID], nil
			}
		}
	}
	return domain.WPUser{}, pgx.ErrNoRows
}

func (r fakeWPRepo) Update(_ context.Context, user domain.WPUser) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.wpUsers[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.store.wpUsers[user.ID] = user
	r.store.updates++
	return nil
}

func (r fakeWPRepo) CreateWithMeta(_ context.Context, user domain.WPUser, meta []domain.UserMeta) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.createErr != nil {
		return 0, r.store.createErr
	}
	r.store.nextID++
	user.ID = r.store.nextID
	r.store.wpUsers[user.ID] = user
	r.store.meta[user.ID] = append([]domain.UserMeta(nil), meta...)
	return user.ID, nil
}

func (r fakeWPRepo) AddMeta(_ context.Context, userID int64, meta domain.UserMeta) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.meta[userID] = append(r.store.meta[userID], meta)
	return nil
}

func (r fakeWPRepo) SetMeta(_ context.Context, userID int64, meta []domain.UserMeta) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, m := range meta {
		replaced := false
		for i, existing := range r.store.meta[userID] {
			if existing.Key == m.Key {
				r.store.meta[userID][i].Value = m.Value
				replaced = true
			}
		}
		if !replaced {
			r.store.meta[userID] = append(r.store.meta[userID], m)
		}
	}
	return nil
}

func (r fakeWPRepo) FindAttachmentByLegacyImageID(_ context.Context, imageID int64) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	id, ok := r.store.attachments[imageID]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	return id, nil
}

type fakeImporter struct {
	mu      sync.Mutex
	calls   []media.Properties
	urls    []string
	mediaID int64
	err     error
}

func (f *fakeImporter) CreateFromURL(_ context.Context, url, _ string, props media.Properties) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, props)
	f.urls = append(f.urls, url)
	return f.mediaID, f.err
}
