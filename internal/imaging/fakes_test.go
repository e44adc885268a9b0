package imaging

import (
	"context"
	"errors"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ayush/endpix/internal/models"
	"github.com/ayush/endpix/internal/store"
)

var (
	pngBytes  = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	jpegBytes = append([]byte("\xff\xd8\xff\xe0"), make([]byte, 64)...)
)

type memIdentities struct {
	mu     sync.Mutex
	byID   map[string]*models.Identity
	setErr error
}

func newMemIdentities(ids ...*models.Identity) *memIdentities {
	m := &memIdentities{byID: map[string]*models.Identity{}}
	for _, id := range ids {
		m.byID[id.ID.Hex()] = id
	}
	return m
}

func (m *memIdentities) IdentityByID(_ context.Context, id string) (*models.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	got, ok := m.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *got
	return &cp, nil
}

func (m *memIdentities) SetImage(_ context.Context, id, url, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	got, ok := m.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	got.ImageURL = url
	got.ImageKey = key
	return nil
}

type object struct {
	data        []byte
	contentType string
}

type memObjects struct {
	mu        sync.Mutex
	objects   map[string]object
	uploadErr error
	removeErr error
	removed   []string
}

func newMemObjects() *memObjects { return &memObjects{objects: map[string]object{}} }

func (m *memObjects) Upload(_ context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploadErr != nil {
		return m.uploadErr
	}
	m.objects[key] = object{data: data, contentType: contentType}
	return nil
}

func (m *memObjects) Download(_ context.Context, key string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	if !ok {
		return nil, "", store.ErrNotFound
	}
	return o.data, o.contentType, nil
}

func (m *memObjects) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, key)
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.removeErr != nil {
		return m.removeErr
	}
	delete(m.objects, key)
	return nil
}

func (m *memObjects) URL(key string) string { return "http://cdn.test/endpix-images/" + key }

type fakeTransformer struct {
	got TransformRequest
	out *TransformResult
	err error
}

func (f *fakeTransformer) Transform(_ context.Context, req TransformRequest) (*TransformResult, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

type memJournal struct {
	mu      sync.Mutex
	entries []models.Enhancement
	err     error
}

func (j *memJournal) InsertEnhancement(_ context.Context, e *models.Enhancement) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	e.ID = primitive.NewObjectID().Hex()
	j.entries = append(j.entries, *e)
	return nil
}

func (j *memJournal) ListEnhancements(_ context.Context, userID string, limit int) ([]models.Enhancement, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return nil, j.err
	}
	var out []models.Enhancement
	for i := len(j.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if j.entries[i].UserID == userID {
			out = append(out, j.entries[i])
		}
	}
	return out, nil
}

type fixture struct {
	svc         *Service
	identities  *memIdentities
	objects     *memObjects
	transformer *fakeTransformer
	journal     *memJournal
	user        *models.Identity
}

func newFixture() *fixture {
	user := &models.Identity{ID: primitive.NewObjectID(), Name: "Ann", Email: "ann@x.com", Credits: 10}
	f := &fixture{
		identities:  newMemIdentities(user),
		objects:     newMemObjects(),
		transformer: &fakeTransformer{out: &TransformResult{Image: pngBytes, MimeType: "image/png"}},
		journal:     &memJournal{},
		user:        user,
	}
	f.svc = NewService(f.identities, f.objects, f.transformer, f.journal, nil, nil)
	n := 0
	f.svc.newID = func() string {
		n++
		return "id-" + string(rune('0'+n))
	}
	return f
}

func (f *fixture) userID() string { return f.user.ID.Hex() }

var errBoom = errors.New("boom")
