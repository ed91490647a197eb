package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/bloghq/apiserver/internal/store"
	"github.com/bloghq/apiserver/types"
)

type fakeUsers struct {
	byName map[string]types.User
	nextID int
}

var _ UserRepository = (*fakeUsers)(nil)

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byName: map[string]types.User{}, nextID: 1}
}

func (f *fakeUsers) GetByID(_ context.Context, id int) (types.User, error) {
	for _, u := range f.byName {
		if u.ID == id {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (types.User, error) {
	u, ok := f.byName[username]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) Create(_ context.Context, user types.User) (types.User, error) {
	if _, exists := f.byName[user.Username]; exists {
		return types.User{}, store.ErrDuplicate
	}
	user.ID = f.nextID
	f.nextID++
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	f.byName[user.Username] = user
	return user, nil
}

func (f *fakeUsers) DeleteByUsername(_ context.Context, username string) error {
	if _, ok := f.byName[username]; !ok {
		return store.ErrNotFound
	}
	delete(f.byName, username)
	return nil
}

func newTestUserService(repo UserRepository) *UserService {
	return NewUserService(repo, "test-secret", time.Hour)
}

func TestUserService_Signup_HashesPassword(t *testing.T) {
	t.Parallel()

	repo := newFakeUsers()
	svc := newTestUserService(repo)

	user, err := svc.Signup(context.Background(), "alice", "a@x.com", "P@ss1")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.NotZero(t, user.ID)

	stored := repo.byName["alice"]
	assert.NotEqual(t, "P@ss1", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("P@ss1")))
}

func TestUserService_Signup_MissingFields(t *testing.T) {
	t.Parallel()

	svc := newTestUserService(newFakeUsers())

	for _, tc := range []struct {
		name                      string
		username, email, password string
	}{
		{"no username", "", "a@x.com", "pw"},
		{"no email", "alice", "", "pw"},
		{"no password", "alice", "a@x.com", ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Signup(context.Background(), tc.username, tc.email, tc.password)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestUserService_Signup_DuplicateUsername(t *testing.T) {
	t.Parallel()

	svc := newTestUserService(newFakeUsers())

	_, err := svc.Signup(context.Background(), "alice", "a@x.com", "pw")
	require.NoError(t, err)

	_, err = svc.Signup(context.Background(), "alice", "other@x.com", "pw2")
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestUserService_Login(t *testing.T) {
	t.Parallel()

	svc := newTestUserService(newFakeUsers())
	_, err := svc.Signup(context.Background(), "alice", "a@x.com", "P@ss1")
	require.NoError(t, err)

	user, token, err := svc.Login(context.Background(), "alice", "P@ss1")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	require.NotEmpty(t, token)
	assert.Len(t, strings.Split(token, "."), 3)
}

func TestUserService_Login_FailuresAreIndistinguishable(t *testing.T) {
	t.Parallel()

	svc := newTestUserService(newFakeUsers())
	_, err := svc.Signup(context.Background(), "alice", "a@x.com", "P@ss1")
	require.NoError(t, err)

	_, _, wrongPassword := svc.Login(context.Background(), "alice", "wrong")
	_, _, unknownUser := svc.Login(context.Background(), "nonexistent", "anything")

	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownUser, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
}

func TestUserService_VerifyToken_RoundTrip(t *testing.T) {
	t.Parallel()

	svc := newTestUserService(newFakeUsers())
	user, err := svc.Signup(context.Background(), "alice", "a@x.com", "pw")
	require.NoError(t, err)

	_, token, err := svc.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)

	claims, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestUserService_VerifyToken_RejectsTamperedAndExpired(t *testing.T) {
	t.Parallel()

	repo := newFakeUsers()
	svc := newTestUserService(repo)
	_, err := svc.Signup(context.Background(), "alice", "a@x.com", "pw")
	require.NoError(t, err)

	_, token, err := svc.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)

	_, err = svc.VerifyToken(token + "x")
	assert.Error(t, err)

	_, err = svc.VerifyToken("not-a-token")
	assert.Error(t, err)

	// A service with a negative TTL issues tokens that are already expired.
	expiredSvc := NewUserService(repo, "test-secret", -time.Minute)
	_, expired, err := expiredSvc.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)
	_, err = expiredSvc.VerifyToken(expired)
	assert.Error(t, err)

	// Tokens signed with a different secret must not verify.
	otherSvc := NewUserService(repo, "other-secret", time.Hour)
	_, foreign, err := otherSvc.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)
	_, err = svc.VerifyToken(foreign)
	assert.Error(t, err)
}

func TestUserService_ResolveID(t *testing.T) {
	t.Parallel()

	svc := newTestUserService(newFakeUsers())
	user, err := svc.Signup(context.Background(), "alice", "a@x.com", "pw")
	require.NoError(t, err)

	id, err := svc.ResolveID(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)

	_, err = svc.ResolveID(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUserService_Delete(t *testing.T) {
	t.Parallel()

	svc := newTestUserService(newFakeUsers())
	_, err := svc.Signup(context.Background(), "alice", "a@x.com", "pw")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), "alice"))
	assert.ErrorIs(t, svc.Delete(context.Background(), "alice"), store.ErrNotFound)
}
