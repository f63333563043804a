package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/sakif/pisure/internal/apperror"
	"github.com/sakif/pisure/internal/authz"
	"github.com/sakif/pisure/internal/events"
	"github.com/sakif/pisure/internal/model"
	"github.com/sakif/pisure/internal/repository"
)

// Hand-written in-memory fakes. Each one can be told to fail so the error
// paths of the services can be exercised without a real backend.

const adminEmail = "admin@pisure.test"

var (
	adminSession = model.Session{UserID: "admin", Email: adminEmail}
	userSession  = model.Session{UserID: "u1", Email: "u1@pisure.test"}
	anonymous    = model.Session{}
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestPolicy() authz.Policy {
	return authz.NewAdminList(adminEmail)
}

// ---- assets ----

type fakeAssetRepo struct {
	mu        sync.Mutex
	assets    map[string]*model.Asset
	usernames map[string]string
	nextID    int

	createErr error
	beginErr  error
	markErr   error
	// deleteErrs is consumed one per DeleteAsset call before deleting.
	deleteErrs  []error
	deleteCalls int
}

func newFakeAssetRepo() *fakeAssetRepo {
	return &fakeAssetRepo{
		assets:    make(map[string]*model.Asset),
		usernames: map[string]string{"u1": "user1", "admin": "admin"},
	}
}

func (f *fakeAssetRepo) CreateAsset(_ context.Context, asset *model.Asset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	asset.ID = fmt.Sprintf("asset-%03d", f.nextID)
	stored := *asset
	stored.Tags = append([]string(nil), asset.Tags...)
	f.assets[asset.ID] = &stored
	return nil
}

func (f *fakeAssetRepo) GetAsset(_ context.Context, id string) (*model.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assets[id]
	if !ok {
		return nil, apperror.NotFound("asset", id)
	}
	out := *a
	out.UploaderUsername = f.usernames[a.UploaderID]
	return &out, nil
}

func (f *fakeAssetRepo) FindAssets(_ context.Context, q repository.AssetQuery) ([]model.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	kw := strings.ToLower(q.Keyword)
	var out []model.Asset
	for _, a := range f.assets {
		if q.ID != "" && a.ID != q.ID {
			continue
		}
		if q.Approved != nil && a.Approved != *q.Approved {
			continue
		}
		if q.UploaderID != "" && a.UploaderID != q.UploaderID {
			continue
		}
		if q.StoragePath != "" && a.StoragePath != q.StoragePath {
			continue
		}
		if kw != "" && !matchesKeyword(a, kw) {
			continue
		}
		c := *a
		c.UploaderUsername = f.usernames[a.UploaderID]
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if q.Order == repository.OldestFirst {
			return out[i].ID < out[j].ID
		}
		return out[i].ID > out[j].ID
	})
	if q.Offset >= len(out) {
		return []model.Asset{}, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func matchesKeyword(a *model.Asset, kw string) bool {
	if strings.Contains(strings.ToLower(a.Title), kw) ||
		strings.Contains(strings.ToLower(a.Description), kw) ||
		strings.Contains(strings.ToLower(string(a.Category)), kw) {
		return true
	}
	for _, t := range a.Tags {
		if strings.ToLower(t) == kw {
			return true
		}
	}
	return false
}

func (f *fakeAssetRepo) ApproveAsset(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assets[id]
	if !ok {
		return false, apperror.NotFound("asset", id)
	}
	switch {
	case a.Approved:
		return false, nil
	case a.Rejecting || a.BlobRemoved:
		return false, apperror.ConflictMsg("asset is being rejected")
	}
	a.Approved = true
	return true, nil
}

func (f *fakeAssetRepo) BeginReject(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.beginErr != nil {
		return f.beginErr
	}
	a, err := f.pendingLocked(id)
	if err != nil {
		return err
	}
	a.Rejecting = true
	return nil
}

func (f *fakeAssetRepo) AbortReject(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.assets[id]; ok && !a.BlobRemoved {
		a.Rejecting = false
	}
	return nil
}

func (f *fakeAssetRepo) MarkBlobRemoved(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	a, err := f.pendingLocked(id)
	if err != nil {
		return err
	}
	a.BlobRemoved = true
	return nil
}

func (f *fakeAssetRepo) DeleteAsset(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if len(f.deleteErrs) > 0 {
		err := f.deleteErrs[0]
		f.deleteErrs = f.deleteErrs[1:]
		return err
	}
	if _, err := f.pendingLocked(id); err != nil {
		return err
	}
	delete(f.assets, id)
	return nil
}

// pendingLocked mirrors the "approved = 0" guard of the SQLite writes.
func (f *fakeAssetRepo) pendingLocked(id string) (*model.Asset, error) {
	a, ok := f.assets[id]
	if !ok {
		return nil, apperror.NotFound("asset", id)
	}
	if a.Approved {
		return nil, apperror.ConflictMsg("approved assets cannot be rejected")
	}
	return a, nil
}

func (f *fakeAssetRepo) IncrementDownloads(_ context.Context, id string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assets[id]
	if !ok || !a.Approved {
		return 0, apperror.NotFound("asset", id)
	}
	a.Downloads++
	return a.Downloads, nil
}

// put stores an asset directly, bypassing Submit.
func (f *fakeAssetRepo) put(t *testing.T, a model.Asset) *model.Asset {
	t.Helper()
	if a.StoragePath == "" {
		a.StoragePath = a.UploaderID + "/" + a.ID + ".png"
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets[a.ID] = &a
	return &a
}

// ---- blobs ----

type fakeStore struct {
	mu          sync.Mutex
	blobs       map[string][]byte
	uploadErr   error
	removeErr   error
	existsErr   error
	removeCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{blobs: make(map[string][]byte)}
}

func (f *fakeStore) Upload(_ context.Context, path string, r io.Reader, _ int64, _ string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[path] = b
	return nil
}

func (f *fakeStore) Remove(_ context.Context, paths ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls++
	if f.removeErr != nil {
		return f.removeErr
	}
	for _, p := range paths {
		delete(f.blobs, p)
	}
	return nil
}

func (f *fakeStore) Exists(_ context.Context, path string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.blobs[path]
	return ok, nil
}

func (f *fakeStore) PublicURL(path string) string {
	return "http://blobs.test/" + path
}

func (f *fakeStore) has(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.blobs[path]
	return ok
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blobs)
}

// ---- events ----

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, e events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) types() []events.Type {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]events.Type, len(f.events))
	for i, e := range f.events {
		out[i] = e.Type
	}
	return out
}

// ---- accounts ----

type fakeAccounts struct {
	mu       sync.Mutex
	users    map[string]*model.User
	profiles map[string]*model.Profile
	nextID   int

	getErr error
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		users:    make(map[string]*model.User),
		profiles: make(map[string]*model.Profile),
	}
}

func (f *fakeAccounts) CreateAccount(_ context.Context, user *model.User, profile *model.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insert(user, profile)
}

func (f *fakeAccounts) insert(user *model.User, profile *model.Profile) error {
	for _, u := range f.users {
		if u.Email == user.Email {
			return &apperror.AppError{Err: apperror.ErrConflict, Message: "email is already registered", Field: "email"}
		}
	}
	for _, p := range f.profiles {
		if p.Username == profile.Username {
			return &apperror.AppError{Err: apperror.ErrConflict, Message: "username is already taken", Field: "username"}
		}
	}
	f.nextID++
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	profile.ID = user.ID
	u, p := *user, *profile
	f.users[user.ID] = &u
	f.profiles[user.ID] = &p
	return nil
}

func (f *fakeAccounts) UpsertGitHubAccount(_ context.Context, user *model.User, profile *model.Profile) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.GitHubID == user.GitHubID {
			*user = *u
			return false, nil
		}
	}
	for _, u := range f.users {
		if u.Email == user.Email {
			u.GitHubID = user.GitHubID
			*user = *u
			return false, nil
		}
	}
	if err := f.insert(user, profile); err != nil {
		return false, err
	}
	return true, nil
}

func (f *fakeAccounts) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	c := *u
	return &c, nil
}

func (f *fakeAccounts) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeAccounts) GetProfileByID(_ context.Context, id string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return nil, apperror.NotFound("profile", id)
	}
	c := *p
	return &c, nil
}

func (f *fakeAccounts) GetProfileByUsername(_ context.Context, username string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.profiles {
		if p.Username == username {
			c := *p
			return &c, nil
		}
	}
	return nil, apperror.NotFound("profile", username)
}

func (f *fakeAccounts) UpdateProfile(_ context.Context, profile *model.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.profiles[profile.ID]; !ok {
		return apperror.NotFound("profile", profile.ID)
	}
	c := *profile
	f.profiles[profile.ID] = &c
	return nil
}

var (
	_ repository.AssetRepository   = (*fakeAssetRepo)(nil)
	_ repository.UserRepository    = (*fakeAccounts)(nil)
	_ repository.ProfileRepository = (*fakeAccounts)(nil)
)
