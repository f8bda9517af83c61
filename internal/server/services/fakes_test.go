package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/dbelyaev/authcore/internal/common"
	"github.com/dbelyaev/authcore/internal/dbx"
	"github.com/dbelyaev/authcore/internal/logging"
	"github.com/dbelyaev/authcore/internal/server/metrics"
	"github.com/dbelyaev/authcore/internal/server/models"
	"github.com/dbelyaev/authcore/internal/server/repositories/credentials"
	"github.com/dbelyaev/authcore/internal/server/repositories/sessions"
	"github.com/dbelyaev/authcore/internal/server/repositories/trusteddevices"
	"github.com/dbelyaev/authcore/internal/server/repositories/users"
	"github.com/prometheus/client_golang/prometheus"
)

// The fakes below back the service tests with in-memory state. Services
// still run their real transaction plumbing, so the db handle is a real
// sqlite connection; the fakes simply ignore which DBTX they were vended
// for.

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:services_tests?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(4)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testLogger() logging.Logger {
	h := slog.NewTextHandler(io.Discard, nil)
	return logging.NewSlogLogger(slog.New(h))
}

func testMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

type fakeStore struct {
	mu       sync.Mutex
	nextID   int
	users    map[string]*models.User          // by id
	creds    map[string]*models.RefreshCredential // by token
	sessions map[string]*models.Session       // by id
	devices  map[string]*models.TrustedDevice // by userID+"/"+deviceID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]*models.User),
		creds:    make(map[string]*models.RefreshCredential),
		sessions: make(map[string]*models.Session),
		devices:  make(map[string]*models.TrustedDevice),
	}
}

func (f *fakeStore) id() string {
	f.nextID++
	return fmt.Sprintf("id-%04d", f.nextID)
}

func (f *fakeStore) credCountActive(userID string) (int64, error) {
	return (&fakeCredentialRepo{f}).CountActiveForUser(context.Background(), userID)
}

// fakeRepoManager vends repositories over one shared fakeStore.
type fakeRepoManager struct{ store *fakeStore }

func (m *fakeRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) users.Repository                  { return &fakeUserRepo{m.store} }
func (m *fakeRepoManager) Credentials(db dbx.DBTX) credentials.Repository {
	return &fakeCredentialRepo{m.store}
}
func (m *fakeRepoManager) Sessions(db dbx.DBTX) sessions.Repository {
	return &fakeSessionRepo{m.store}
}
func (m *fakeRepoManager) TrustedDevices(db dbx.DBTX) trusteddevices.Repository {
	return &fakeTrustedDeviceRepo{m.store}
}

type fakeUserRepo struct{ s *fakeStore }

func (r *fakeUserRepo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u := *user
	u.ID = r.s.id()
	u.CreatedAt = time.Now()
	r.s.users[u.ID] = &u
	out := u
	return &out, nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := *u
	return &out, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *fakeUserRepo) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Phone != nil && *u.Phone == phone {
			out := *u
			return &out, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *fakeUserRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.LastLoginAt = &at
	return nil
}

func (r *fakeUserRepo) SetEmailVerified(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.EmailVerified = true
	return nil
}

func (r *fakeUserRepo) SetPhoneVerified(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.PhoneVerified = true
	return nil
}

func (r *fakeUserRepo) SetActive(ctx context.Context, id string, active bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.Active = active
	return nil
}

type fakeCredentialRepo struct{ s *fakeStore }

func (r *fakeCredentialRepo) Create(ctx context.Context, userID, token string, expiresAt time.Time) (*models.RefreshCredential, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := &models.RefreshCredential{
		ID:        r.s.id(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	r.s.creds[token] = c
	out := *c
	return &out, nil
}

func (r *fakeCredentialRepo) FindActive(ctx context.Context, token string) (*models.RefreshCredential, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.creds[token]
	if !ok || !c.Usable(time.Now()) {
		return nil, common.ErrorNotFound
	}
	out := *c
	return &out, nil
}

func (r *fakeCredentialRepo) Revoke(ctx context.Context, token string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.creds[token]
	if !ok || c.Revoked {
		return false, nil
	}
	c.Revoked = true
	return true, nil
}

func (r *fakeCredentialRepo) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, c := range r.s.creds {
		if c.UserID == userID && !c.Revoked {
			c.Revoked = true
			n++
		}
	}
	return n, nil
}

func (r *fakeCredentialRepo) CountActiveForUser(ctx context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	now := time.Now()
	for _, c := range r.s.creds {
		if c.UserID == userID && c.Usable(now) {
			n++
		}
	}
	return n, nil
}

type fakeSessionRepo struct{ s *fakeStore }

func (r *fakeSessionRepo) Insert(ctx context.Context, session *models.Session) (*models.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess := *session
	sess.ID = r.s.id()
	sess.CreatedAt = time.Now()
	r.s.sessions[sess.ID] = &sess
	out := sess
	return &out, nil
}

func (r *fakeSessionRepo) Update(ctx context.Context, session *models.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.sessions[session.ID]; !ok {
		return common.ErrorNotFound
	}
	sess := *session
	r.s.sessions[sess.ID] = &sess
	return nil
}

func (r *fakeSessionRepo) GetByID(ctx context.Context, id string) (*models.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := *sess
	return &out, nil
}

func (r *fakeSessionRepo) GetActive(ctx context.Context, userID, deviceID string) (*models.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sess := range r.s.sessions {
		if sess.UserID == userID && sess.Device.DeviceID == deviceID && sess.Active {
			out := *sess
			return &out, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *fakeSessionRepo) ListActive(ctx context.Context, userID string) ([]*models.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Session
	for _, sess := range r.s.sessions {
		if sess.UserID == userID && sess.Active {
			cp := *sess
			out = append(out, &cp)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].LastActivityAt.After(out[i].LastActivityAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) Deactivate(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[id]
	if !ok {
		return common.ErrorNotFound
	}
	sess.Active = false
	return nil
}

func (r *fakeSessionRepo) DeactivateAll(ctx context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, sess := range r.s.sessions {
		if sess.UserID == userID && sess.Active {
			sess.Active = false
			n++
		}
	}
	return n, nil
}

func (r *fakeSessionRepo) DeactivateAllExcept(ctx context.Context, userID, deviceID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, sess := range r.s.sessions {
		if sess.UserID == userID && sess.Active && sess.Device.DeviceID != deviceID {
			sess.Active = false
			n++
		}
	}
	return n, nil
}

func (r *fakeSessionRepo) SetTrusted(ctx context.Context, userID, deviceID string, trusted bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sess := range r.s.sessions {
		if sess.UserID == userID && sess.Device.DeviceID == deviceID && sess.Active {
			sess.Trusted = trusted
		}
	}
	return nil
}

func (r *fakeSessionRepo) ReplaceCredential(ctx context.Context, oldCredentialID, newCredentialID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sess := range r.s.sessions {
		if sess.Active && sess.CredentialID == oldCredentialID {
			sess.CredentialID = newCredentialID
		}
	}
	return nil
}

type fakeTrustedDeviceRepo struct{ s *fakeStore }

func deviceKey(userID, deviceID string) string { return userID + "/" + deviceID }

func (r *fakeTrustedDeviceRepo) Get(ctx context.Context, userID, deviceID string) (*models.TrustedDevice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.devices[deviceKey(userID, deviceID)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := *d
	return &out, nil
}

func (r *fakeTrustedDeviceRepo) Insert(ctx context.Context, device *models.TrustedDevice) (*models.TrustedDevice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d := *device
	d.ID = r.s.id()
	r.s.devices[deviceKey(d.UserID, d.Device.DeviceID)] = &d
	out := d
	return &out, nil
}

func (r *fakeTrustedDeviceRepo) Update(ctx context.Context, device *models.TrustedDevice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := deviceKey(device.UserID, device.Device.DeviceID)
	if _, ok := r.s.devices[key]; !ok {
		return common.ErrorNotFound
	}
	d := *device
	r.s.devices[key] = &d
	return nil
}

func (r *fakeTrustedDeviceRepo) ListActive(ctx context.Context, userID string) ([]*models.TrustedDevice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.TrustedDevice
	for _, d := range r.s.devices {
		if d.UserID == userID && d.Active {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}
