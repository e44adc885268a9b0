package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ayush/endpix/internal/models"
	"github.com/ayush/endpix/internal/store"
)

// memStore is an in-memory StagedStore and IdentityStore keyed by email.
type memStore struct {
	mu         sync.Mutex
	staged     map[string]models.StagedIdentity
	identities map[string]models.Identity
	deleteErr  error

	// hideLookups makes FindStaged and IdentityByEmail miss, as when a
	// concurrent request writes between the pre-check and the insert.
	hideLookups bool
}

func newMemStore() *memStore {
	return &memStore{
		staged:     map[string]models.StagedIdentity{},
		identities: map[string]models.Identity{},
	}
}

func (m *memStore) InsertStaged(_ context.Context, st *models.StagedIdentity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.staged[st.Email]; ok {
		return store.ErrDuplicateEmail
	}
	st.ID = primitive.NewObjectID()
	m.staged[st.Email] = *st
	return nil
}

func (m *memStore) FindStaged(_ context.Context, email string) (*models.StagedIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.staged[email]
	if !ok || m.hideLookups {
		return nil, store.ErrNotFound
	}
	return &st, nil
}

func (m *memStore) RefreshStagedOTP(_ context.Context, email, otp string, expiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.staged[email]
	if !ok {
		return store.ErrNotFound
	}
	st.OTP = otp
	st.OTPExpiry = expiry
	m.staged[email] = st
	return nil
}

func (m *memStore) DeleteStaged(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.staged, email)
	return nil
}

func (m *memStore) DeleteExpiredStaged(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for email, st := range m.staged {
		if !st.OTPExpiry.After(now) {
			delete(m.staged, email)
			n++
		}
	}
	return n, nil
}

func (m *memStore) InsertIdentity(_ context.Context, id *models.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.identities[id.Email]; ok {
		return store.ErrDuplicateEmail
	}
	id.ID = primitive.NewObjectID()
	m.identities[id.Email] = *id
	return nil
}

func (m *memStore) IdentityByEmail(_ context.Context, email string) (*models.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.identities[email]
	if !ok || m.hideLookups {
		return nil, store.ErrNotFound
	}
	return &id, nil
}

func (m *memStore) IdentityByID(_ context.Context, hex string) (*models.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.identities {
		if id.ID.Hex() == hex {
			return &id, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) stagedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.staged)
}

// plainHasher stores passwords with a prefix so tests stay fast.
type plainHasher struct {
	compares int
}

func (h *plainHasher) Hash(password string) (string, error) {
	return "hashed:" + password, nil
}

func (h *plainHasher) Compare(hash, password string) error {
	h.compares++
	if hash != "hashed:"+password {
		return ErrPasswordMismatch
	}
	return nil
}

type fakeTokens struct{}

func (fakeTokens) Issue(userID string) (string, error) {
	return "token-for-" + userID, nil
}

type sentMail struct {
	to, name, code string
	ttl            time.Duration
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeMailer) SendOTP(_ context.Context, to, name, code string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: to, name: name, code: code, ttl: ttl})
	return nil
}

func (f *fakeMailer) last() sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

// seqOTP hands out codes in order.
type seqOTP struct {
	codes []string
	i     int
}

func (s *seqOTP) Next() (string, error) {
	if s.i >= len(s.codes) {
		return "", errors.New("out of codes")
	}
	c := s.codes[s.i]
	s.i++
	return c, nil
}

type fakeCooldown struct {
	used map[string]bool
	err  error
}

func (f *fakeCooldown) Acquire(_ context.Context, key string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.used == nil {
		f.used = map[string]bool{}
	}
	if f.used[key] {
		return false, nil
	}
	f.used[key] = true
	return true, nil
}

func (f *fakeCooldown) Release(_ context.Context, key string) error {
	delete(f.used, key)
	return nil
}

type clock struct {
	t time.Time
}

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// recorder counts outcomes per operation.
type recorder struct {
	mu     sync.Mutex
	counts map[string]int
	swept  int64
	mail   int
}

func newRecorder() *recorder { return &recorder{counts: map[string]int{}} }

func (r *recorder) add(op, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[op+":"+outcome]++
}

func (r *recorder) get(op, outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[op+":"+outcome]
}

func (r *recorder) RecordRegistration(o string) { r.add("register", o) }
func (r *recorder) RecordVerification(o string) { r.add("verify", o) }
func (r *recorder) RecordLogin(o string) { r.add("login", o) }
func (r *recorder) RecordResend(o string) { r.add("resend", o) }
func (r *recorder) RecordMailFailure() { r.mu.Lock(); r.mail++; r.mu.Unlock() }
func (r *recorder) RecordStagedSwept(n int64) { r.mu.Lock(); r.swept += n; r.mu.Unlock() }
func (r *recorder) RecordEnhancement(string, time.Duration) {}
func (r *recorder) RecordHTTPStatus(int) {}

type fixture struct {
	svc      *Service
	store    *memStore
	hasher   *plainHasher
	mailer   *fakeMailer
	cooldown *fakeCooldown
	clock    *clock
	rec      *recorder
}

func newFixture(codes ...string) *fixture {
	if len(codes) == 0 {
		codes = []string{"4821", "7310", "5096"}
	}
	f := &fixture{
		store:    newMemStore(),
		hasher:   &plainHasher{},
		mailer:   &fakeMailer{},
		cooldown: &fakeCooldown{},
		clock:    &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		rec:      newRecorder(),
	}
	f.svc = NewService(Options{
		Staged:          f.store,
		Identities:      f.store,
		Hasher:          f.hasher,
		Tokens:          fakeTokens{},
		Mailer:          f.mailer,
		OTP:             &seqOTP{codes: codes},
		Cooldown:        f.cooldown,
		Metrics:         f.rec,
		Now:             f.clock.Now,
		OTPTTL:          5 * time.Minute,
		BlockDisposable: true,
	})
	return f
}

func ann() models.RegisterRequest {
	return models.RegisterRequest{Name: "Ann", Email: "ann@x.com", Password: "secret1"}
}

func upper(s string) string { return strings.ToUpper(s) }
