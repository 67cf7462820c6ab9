package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/artelie/backend/internal/common"
	"github.com/artelie/backend/internal/cryptox"
	"github.com/artelie/backend/internal/dbx"
	"github.com/artelie/backend/internal/logging"
	"github.com/artelie/backend/internal/server/auth"
	"github.com/artelie/backend/internal/server/config"
	"github.com/artelie/backend/internal/server/mail"
	"github.com/artelie/backend/internal/server/models"
	"github.com/artelie/backend/internal/server/password"
	"github.com/artelie/backend/internal/server/repositories/accounts"
	"github.com/artelie/backend/internal/server/repositories/revocations"
	"github.com/stretchr/testify/require"
)

// --- in-memory credential store ---

type memAccounts struct {
	mu          sync.Mutex
	rows        map[string]*models.Account
	deactivated map[string]bool
	seq         int

	createErr error
	updateErr error
}

func newMemAccounts() *memAccounts {
	return &memAccounts{rows: map[string]*models.Account{}, deactivated: map[string]bool{}}
}

func clone(a *models.Account) *models.Account {
	c := *a
	if a.VerificationToken != nil {
		t := *a.VerificationToken
		c.VerificationToken = &t
	}
	if a.VerificationTokenCreatedAt != nil {
		t := *a.VerificationTokenCreatedAt
		c.VerificationTokenCreatedAt = &t
	}
	if a.LockedUntil != nil {
		t := *a.LockedUntil
		c.LockedUntil = &t
	}
	return &c
}

func (m *memAccounts) put(a *models.Account) *models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	a.ID = fmt.Sprintf("u-%d", m.seq)
	a.CreatedAt = time.Now()
	m.rows[a.ID] = clone(a)
	return a
}

func (m *memAccounts) get(id string) *models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.rows[id]; ok {
		return clone(a)
	}
	return nil
}

func (m *memAccounts) find(match func(*models.Account) bool) *models.Account {
	for _, a := range m.rows {
		if match(a) {
			return a
		}
	}
	return nil
}

func (m *memAccounts) Create(_ context.Context, a *models.Account) (*models.Account, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.mu.Lock()
	dup := m.find(func(x *models.Account) bool { return x.Email == a.Email || x.Username == a.Username })
	m.mu.Unlock()
	if dup != nil {
		v := common.NewValidationError()
		v.Add("email", "a user with this email already exists")
		return nil, v
	}
	return m.put(a), nil
}

func (m *memAccounts) lookup(match func(*models.Account) bool) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a := m.find(match); a != nil {
		return clone(a), nil
	}
	return nil, common.ErrorNotFound
}

func (m *memAccounts) GetByID(_ context.Context, id string) (*models.Account, error) {
	return m.lookup(func(a *models.Account) bool { return a.ID == id })
}

func (m *memAccounts) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	return m.lookup(func(a *models.Account) bool { return a.Email == email })
}

func (m *memAccounts) GetByEmailForUpdate(ctx context.Context, email string) (*models.Account, error) {
	return m.GetByEmail(ctx, email)
}

func (m *memAccounts) GetByVerificationToken(_ context.Context, token string) (*models.Account, error) {
	return m.lookup(func(a *models.Account) bool {
		return a.VerificationToken != nil && *a.VerificationToken == token
	})
}

func (m *memAccounts) ExistsByUsername(_ context.Context, username string) (bool, error) {
	_, err := m.lookup(func(a *models.Account) bool { return a.Username == username })
	return err == nil, nil
}

func (m *memAccounts) ExistsByEmail(_ context.Context, email string) (bool, error) {
	_, err := m.lookup(func(a *models.Account) bool { return a.Email == email })
	return err == nil, nil
}

func (m *memAccounts) SetVerificationToken(_ context.Context, id, token string, issuedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok || a.IsVerified || m.deactivated[id] {
		return common.ErrorNotFound
	}
	a.VerificationToken = &token
	a.VerificationTokenCreatedAt = &issuedAt
	return nil
}

func (m *memAccounts) ActivateByToken(_ context.Context, token string, notBefore time.Time) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.find(func(a *models.Account) bool {
		return a.VerificationToken != nil && *a.VerificationToken == token &&
			!a.VerificationTokenCreatedAt.Before(notBefore)
	})
	if a == nil {
		return nil, common.ErrorNotFound
	}
	a.IsActive, a.IsVerified = true, true
	a.VerificationToken, a.VerificationTokenCreatedAt = nil, nil
	return clone(a), nil
}

func (m *memAccounts) SaveLoginState(_ context.Context, id string, failed int, lockedUntil *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return common.ErrorNotFound
	}
	a.FailedLoginAttempts = failed
	a.LockedUntil = nil
	if lockedUntil != nil {
		t := *lockedUntil
		a.LockedUntil = &t
	}
	return nil
}

func (m *memAccounts) UpdatePasswordHash(_ context.Context, id, oldHash, newHash string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok || a.PasswordHash != oldHash {
		return common.ErrorNotFound
	}
	a.PasswordHash = newHash
	return nil
}

func (m *memAccounts) UpdateFullName(_ context.Context, id, fullName string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	a, ok := m.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	a.FullName = fullName
	return clone(a), nil
}

func (m *memAccounts) Deactivate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return common.ErrorNotFound
	}
	a.IsActive = false
	a.VerificationToken, a.VerificationTokenCreatedAt = nil, nil
	m.deactivated[id] = true
	return nil
}

// --- revocation set ---

type memRevocations struct {
	mu        sync.Mutex
	set       map[string]models.Revocation
	revokeErr error
}

func newMemRevocations() *memRevocations {
	return &memRevocations{set: map[string]models.Revocation{}}
}

func (r *memRevocations) Revoke(_ context.Context, rev models.Revocation) (bool, error) {
	if r.revokeErr != nil {
		return false, r.revokeErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.set[rev.JTI]; ok {
		return false, nil
	}
	r.set[rev.JTI] = rev
	return true, nil
}

func (r *memRevocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.set[jti]
	return ok, nil
}

func (r *memRevocations) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.set)
}

type fakeRepoManager struct {
	accounts    *memAccounts
	revocations *memRevocations
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Accounts(dbx.DBTX) accounts.Repository      { return m.accounts }
func (m *fakeRepoManager) Revocations(dbx.DBTX) revocations.Repository {
	return m.revocations
}

// --- mail ---

type sentMail struct {
	kind string
	msg  mail.Message
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (f *fakeMailer) Dispatch(_ context.Context, kind string, msg mail.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{kind: kind, msg: msg})
}

func (f *fakeMailer) all() []sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMail(nil), f.sent...)
}

// --- environment ---

var cheapParams = cryptox.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

type testEnv struct {
	cfg          *config.Config
	db           *sql.DB
	mock         sqlmock.Sqlmock
	repos        *fakeRepoManager
	mailer       *fakeMailer
	hasher       *cryptox.Hasher
	issuer       *auth.Issuer
	verification *VerificationService
	tokens       *TokenService
	accounts     *AccountService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{}
	cfg.LoadDefaults()

	hasher, err := cryptox.NewHasher(cheapParams)
	require.NoError(t, err)
	renderer, err := mail.NewRenderer()
	require.NoError(t, err)

	e := &testEnv{
		cfg:    cfg,
		db:     db,
		mock:   mock,
		repos:  &fakeRepoManager{accounts: newMemAccounts(), revocations: newMemRevocations()},
		mailer: &fakeMailer{},
		hasher: hasher,
		issuer: auth.NewIssuer([]byte(cfg.SecretKey), cfg.AccessTokenValidityDuration, cfg.RefreshTokenValidityDuration),
	}
	l := logging.NewDiscard()
	e.verification = NewVerificationService(db, e.repos, cfg, e.mailer, renderer, l)
	e.tokens = NewTokenService(db, e.repos, cfg, e.issuer, hasher, l)
	e.accounts = NewAccountService(db, e.repos, hasher, password.NewPolicy(cfg.PasswordMinLength, cfg.StrictPasswords, cfg.PasswordMinEntropyBits),
		e.verification, e.mailer, renderer, l)
	return e
}

// expectTx queues one committed transaction on the mock.
func (e *testEnv) expectTx() {
	e.mock.ExpectBegin()
	e.mock.ExpectCommit()
}

// seedActive stores an active, verified account with the given password.
func (e *testEnv) seedActive(t *testing.T, email, pw string) *models.Account {
	t.Helper()
	hash, err := e.hasher.Hash(pw)
	require.NoError(t, err)
	return e.repos.accounts.put(&models.Account{
		Username:     "user_" + fmt.Sprint(len(e.repos.accounts.rows)+1),
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		IsVerified:   true,
	})
}
