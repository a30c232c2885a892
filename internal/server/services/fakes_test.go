package services

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/timecapsule/internal/common"
	"github.com/dmitrijs2005/timecapsule/internal/dbx"
	"github.com/dmitrijs2005/timecapsule/internal/logging"
	"github.com/dmitrijs2005/timecapsule/internal/server/config"
	"github.com/dmitrijs2005/timecapsule/internal/server/models"
	"github.com/dmitrijs2005/timecapsule/internal/server/repositories/capsules"
	"github.com/dmitrijs2005/timecapsule/internal/server/repositories/messages"
	"github.com/dmitrijs2005/timecapsule/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/timecapsule/internal/server/repositories/users"
)

// --- sql helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func expectCommit(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectCommit()
}

func expectRollback(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectRollback()
}

// --- in-memory repositories ---

type memStore struct {
	mu       sync.Mutex
	nextID   int64
	users    map[int64]models.User
	capsules map[int64]models.Capsule
	messages map[int64]models.Message
	tokens   map[string]models.RefreshToken

	createMessageErr error
	updateMessageErr error
	deleteCapsuleErr error
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[int64]models.User{},
		capsules: map[int64]models.Capsule{},
		messages: map[int64]models.Message{},
		tokens:   map[string]models.RefreshToken{},
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) addUser(u models.User) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = s.id()
	s.users[u.ID] = u
	return &u
}

func (s *memStore) addCapsule(c models.Capsule) *models.Capsule {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id()
	s.capsules[c.ID] = c
	return &c
}

func (s *memStore) addMessage(m models.Message) *models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.id()
	s.messages[m.ID] = m
	return &m
}

type memUsers struct{ s *memStore }

func (r memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.users {
		if other.Phone == u.Phone || (u.Email != nil && other.Email != nil && *other.Email == *u.Email) {
			return nil, common.ErrorConflict
		}
	}
	u.ID = r.s.id()
	u.CreatedAt = time.Now().UTC()
	r.s.users[u.ID] = *u
	cp := *u
	return &cp, nil
}

func (r memUsers) find(match func(models.User) bool) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if match(u) {
			cp := u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.ID == id })
}

func (r memUsers) GetByPhone(_ context.Context, phone string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.Phone == phone })
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.Email != nil && *u.Email == email })
}

func (r memUsers) Update(_ context.Context, u *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[u.ID]; !ok {
		return common.ErrorNotFound
	}
	r.s.users[u.ID] = *u
	return nil
}

func (r memUsers) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.users, id)
	for cid, c := range r.s.capsules {
		if c.OwnerID == id {
			r.s.deleteCapsuleLocked(cid)
		}
	}
	for mid, m := range r.s.messages {
		if m.CreatorID == id {
			delete(r.s.messages, mid)
		}
	}
	return nil
}

func (s *memStore) deleteCapsuleLocked(id int64) {
	delete(s.capsules, id)
	for mid, m := range s.messages {
		if m.CapsuleID == id {
			delete(s.messages, mid)
		}
	}
}

type memCapsules struct{ s *memStore }

func (r memCapsules) Create(_ context.Context, c *models.Capsule) (*models.Capsule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c.ID = r.s.id()
	c.CreatedAt = time.Now().UTC()
	r.s.capsules[c.ID] = *c
	cp := *c
	return &cp, nil
}

func (r memCapsules) GetByID(_ context.Context, id int64) (*models.Capsule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.capsules[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &c, nil
}

func (r memCapsules) GetForUpdate(ctx context.Context, id int64) (*models.Capsule, error) {
	return r.GetByID(ctx, id)
}

func (r memCapsules) Update(_ context.Context, c *models.Capsule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.capsules[c.ID]; !ok {
		return common.ErrorNotFound
	}
	r.s.capsules[c.ID] = *c
	return nil
}

func (r memCapsules) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.deleteCapsuleErr != nil {
		return r.s.deleteCapsuleErr
	}
	if _, ok := r.s.capsules[id]; !ok {
		return common.ErrorNotFound
	}
	r.s.deleteCapsuleLocked(id)
	return nil
}

type memMessages struct{ s *memStore }

func (r memMessages) Create(_ context.Context, m *models.Message) (*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.createMessageErr != nil {
		return nil, r.s.createMessageErr
	}
	m.ID = r.s.id()
	m.CreatedAt = time.Now().UTC()
	r.s.messages[m.ID] = *m
	cp := *m
	return &cp, nil
}

func (r memMessages) Get(_ context.Context, capsuleID, messageID int64) (*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[messageID]
	if !ok || m.CapsuleID != capsuleID {
		return nil, common.ErrorNotFound
	}
	return &m, nil
}

func (r memMessages) ListByCapsule(_ context.Context, capsuleID int64) ([]*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.Message, 0)
	for _, m := range r.s.messages {
		if m.CapsuleID == capsuleID {
			cp := m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memMessages) Update(_ context.Context, m *models.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.updateMessageErr != nil {
		return r.s.updateMessageErr
	}
	cur, ok := r.s.messages[m.ID]
	if !ok || cur.CapsuleID != m.CapsuleID {
		return common.ErrorNotFound
	}
	r.s.messages[m.ID] = *m
	return nil
}

func (r memMessages) Delete(_ context.Context, capsuleID, messageID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[messageID]
	if !ok || m.CapsuleID != capsuleID {
		return common.ErrorNotFound
	}
	delete(r.s.messages, messageID)
	return nil
}

func (r memMessages) filenames(match func(models.Message) bool) []string {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []int64
	for id, m := range r.s.messages {
		if m.Filename != nil && match(m) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []string
	for _, id := range ids {
		out = append(out, *r.s.messages[id].Filename)
	}
	return out
}

func (r memMessages) FilenamesByCapsule(_ context.Context, capsuleID int64) ([]string, error) {
	return r.filenames(func(m models.Message) bool { return m.CapsuleID == capsuleID }), nil
}

func (r memMessages) FilenamesByUser(_ context.Context, userID int64) ([]string, error) {
	r.s.mu.Lock()
	owned := map[int64]bool{}
	for id, c := range r.s.capsules {
		if c.OwnerID == userID {
			owned[id] = true
		}
	}
	r.s.mu.Unlock()
	return r.filenames(func(m models.Message) bool { return m.CreatorID == userID || owned[m.CapsuleID] }), nil
}

type memTokens struct{ s *memStore }

func (r memTokens) Create(_ context.Context, userID int64, token string, validity time.Duration) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.tokens[token] = models.RefreshToken{UserID: userID, Token: token, Expires: time.Now().UTC().Add(validity)}
	return nil
}

func (r memTokens) Consume(_ context.Context, token string) (*models.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	delete(r.s.tokens, token)
	return &t, nil
}

func (r memTokens) DeleteByUser(_ context.Context, userID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for k, t := range r.s.tokens {
		if t.UserID == userID {
			delete(r.s.tokens, k)
		}
	}
	return nil
}

type memRepoManager struct{ s *memStore }

func (m memRepoManager) RunMigrations(context.Context, *sql.DB) error    { return nil }
func (m memRepoManager) Users(dbx.DBTX) users.Repository                 { return memUsers(m) }
func (m memRepoManager) Capsules(dbx.DBTX) capsules.Repository           { return memCapsules(m) }
func (m memRepoManager) Messages(dbx.DBTX) messages.Repository           { return memMessages(m) }
func (m memRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return memTokens(m) }

// --- file store ---

type memFiles struct {
	mu      sync.Mutex
	n       int
	objects map[string]string
	deleted []string
	saveErr error
}

func newMemFiles() *memFiles { return &memFiles{objects: map[string]string{}} }

func (f *memFiles) Save(_ context.Context, name string, r io.Reader) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	ref := "capsules/test/" + strings.Repeat("x", f.n) + "_" + name
	f.objects[ref] = string(data)
	return ref, nil
}

func (f *memFiles) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.objects[ref]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return io.NopCloser(strings.NewReader(v)), nil
}

func (f *memFiles) Delete(_ context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
	delete(f.objects, ref)
	return nil
}

func (f *memFiles) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// --- notifier ---

type notification struct {
	kind, to, subject, body string
}

type recNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recNotifier) NotifySMS(_ context.Context, phone, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{kind: "sms", to: phone, body: text})
}

func (n *recNotifier) NotifyEmail(_ context.Context, to, subject, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{kind: "email", to: to, subject: subject, body: body})
}

// --- fixtures ---

var errBoom = errors.New("boom")

func strPtr(s string) *string { return &s }

func testConfig() *config.Config {
	return &config.Config{
		SecretKey:                    "k",
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: 2 * time.Hour,
	}
}

type fixture struct {
	db       *sql.DB
	mock     sqlmock.Sqlmock
	store    *memStore
	files    *memFiles
	notifier *recNotifier

	users    *UserService
	capsules *CapsuleService
	messages *MessageService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, mock := newSQLMockDB(t)
	store := newMemStore()
	files := newMemFiles()
	n := &recNotifier{}
	rm := memRepoManager{s: store}
	log := logging.Nop()

	return &fixture{
		db:       db,
		mock:     mock,
		store:    store,
		files:    files,
		notifier: n,
		users:    NewUserService(db, rm, files, testConfig(), log),
		capsules: NewCapsuleService(db, rm, files, n, log),
		messages: NewMessageService(db, rm, files, log),
	}
}

// setNow pins the clock of every service.
func (f *fixture) setNow(now time.Time) {
	clock := func() time.Time { return now }
	f.users.now = clock
	f.capsules.now = clock
	f.messages.now = clock
}
