package media

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/twofold/corner/internal/apperr"
	"github.com/twofold/corner/internal/middleware"
	"github.com/twofold/corner/internal/storage/storagetest"
)

const (
	locketID = "6f1c2a4e-4a55-4c21-9a3c-0d4f3d1f6a11"
	groupID  = "0b8e9c8d-2f0a-4e53-8d52-3b1b7e5f9c22"
	key      = "media/1767225600000-0123456789abcdef-a.png"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Create(ctx context.Context, it NewItem) (*MediaItem, error) {
	args := m.Called(ctx, it)
	v, _ := args.Get(0).(*MediaItem)
	return v, args.Error(1)
}

func (m *mockStore) GetByID(ctx context.Context, id string) (*MediaItem, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(*MediaItem)
	return v, args.Error(1)
}

func (m *mockStore) ListByGroup(ctx context.Context, groupID string) ([]MediaItem, error) {
	args := m.Called(ctx, groupID)
	v, _ := args.Get(0).([]MediaItem)
	return v, args.Error(1)
}

func (m *mockStore) UpdateCaption(ctx context.Context, id string, caption *string) (*MediaItem, error) {
	args := m.Called(ctx, id, caption)
	v, _ := args.Get(0).(*MediaItem)
	return v, args.Error(1)
}

func (m *mockStore) Delete(ctx context.Context, id string) (*MediaItem, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(*MediaItem)
	return v, args.Error(1)
}

// members maps locketID to the set of its member IDs.
type members map[string][]string

func (m members) IsMember(_ context.Context, locketID, userID string) (bool, error) {
	for _, id := range m[locketID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func validInput() RegisterInput {
	return RegisterInput{
		LocketID:   locketID,
		Filename:   "a.png",
		StorageKey: key,
		StorageURL: "https://cdn.example.com/" + key,
		FileType:   "image/png",
		FileSize:   5_000_000,
	}
}

func newTestService(store Store, gw *storagetest.Gateway, log *zap.Logger) *Service {
	return NewService(store, members{locketID: {"u1", "u2"}}, gw, time.Hour, log)
}

func TestService_Register_NewGroup(t *testing.T) {
	store := new(mockStore)
	store.On("Create", mock.Anything, mock.MatchedBy(func(it NewItem) bool {
		return it.MemoryGroupID == "" && it.StorageKey == key && it.UploadedBy == "u1" && it.ContentType == "image/png"
	})).Return(&MediaItem{ID: "m1", MemoryGroupID: groupID, StorageKey: key}, nil)

	m, err := newTestService(store, storagetest.New("https://cdn"), zap.NewNop()).
		Register(context.Background(), "u1", validInput())
	require.NoError(t, err)
	assert.Equal(t, groupID, m.MemoryGroupID)
	store.AssertExpectations(t)
}

func TestService_Register_ExistingGroup(t *testing.T) {
	in := validInput()
	gid := groupID
	in.MemoryGroupID = &gid
	caption := "  "
	in.Caption = &caption

	store := new(mockStore)
	store.On("Create", mock.Anything, mock.MatchedBy(func(it NewItem) bool {
		return it.MemoryGroupID == groupID && it.Caption == nil
	})).Return(&MediaItem{ID: "m1", MemoryGroupID: groupID}, nil)

	_, err := newTestService(store, storagetest.New("https://cdn"), zap.NewNop()).
		Register(context.Background(), "u1", in)
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestService_Register_Rejects(t *testing.T) {
	cases := []struct {
		name   string
		userID string
		mutate func(*RegisterInput)
		kind   apperr.Kind
	}{
		{"non member", "stranger", func(*RegisterInput) {}, apperr.KindPermission},
		{"foreign key prefix", "u1", func(in *RegisterInput) { in.StorageKey = "avatars/a.png" }, apperr.KindValidation},
		{"disallowed type", "u1", func(in *RegisterInput) { in.FileType = "application/zip" }, apperr.KindValidation},
		{"oversize", "u1", func(in *RegisterInput) { in.FileSize = 11 * 1024 * 1024 }, apperr.KindValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := new(mockStore)
			in := validInput()
			tc.mutate(&in)

			_, err := newTestService(store, storagetest.New("https://cdn"), zap.NewNop()).
				Register(context.Background(), tc.userID, in)
			assert.True(t, apperr.Is(err, tc.kind), "got %v", err)
			store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestService_Register_GroupMismatch(t *testing.T) {
	in := validInput()
	gid := groupID
	in.MemoryGroupID = &gid
	store := new(mockStore)
	store.On("Create", mock.Anything, mock.Anything).Return(nil, ErrGroupMismatch)

	_, err := newTestService(store, storagetest.New("https://cdn"), zap.NewNop()).
		Register(context.Background(), "u1", in)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestService_Register_PersistenceFailureLeavesStorage(t *testing.T) {
	gw := storagetest.New("https://cdn")
	store := new(mockStore)
	store.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

	_, err := newTestService(store, gw, zap.NewNop()).Register(context.Background(), "u1", validInput())
	assert.True(t, apperr.Is(err, apperr.KindInternal))
	_, _, deletes := gw.Calls()
	assert.Zero(t, deletes)
}

func TestService_Register_SameKeyTwice(t *testing.T) {
	store := new(mockStore)
	store.On("Create", mock.Anything, mock.Anything).Return(&MediaItem{ID: "m1", StorageKey: key}, nil).Once()
	store.On("Create", mock.Anything, mock.Anything).Return(&MediaItem{ID: "m2", StorageKey: key}, nil).Once()
	svc := newTestService(store, storagetest.New("https://cdn"), zap.NewNop())

	a, err := svc.Register(context.Background(), "u1", validInput())
	require.NoError(t, err)
	b, err := svc.Register(context.Background(), "u2", validInput())
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a.StorageKey, b.StorageKey)
}

func TestService_DownloadURL_UsesStoredKey(t *testing.T) {
	gw := storagetest.New("https://cdn")
	gw.Objects[key] = true
	store := new(mockStore)
	store.On("GetByID", mock.Anything, "m1").Return(&MediaItem{ID: "m1", LocketID: locketID, StorageKey: key}, nil)

	u, err := newTestService(store, gw, zap.NewNop()).DownloadURL(context.Background(), "u1", "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{key}, gw.Downloads)
	assert.Contains(t, u.URL, key)
}

func TestService_DownloadURL_MissingObject(t *testing.T) {
	store := new(mockStore)
	store.On("GetByID", mock.Anything, "m1").Return(&MediaItem{ID: "m1", LocketID: locketID, StorageKey: key}, nil)

	_, err := newTestService(store, storagetest.New("https://cdn"), zap.NewNop()).
		DownloadURL(context.Background(), "u1", "m1")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestService_Get(t *testing.T) {
	store := new(mockStore)
	store.On("GetByID", mock.Anything, "missing").Return(nil, ErrNotFound)
	store.On("GetByID", mock.Anything, "m1").Return(&MediaItem{ID: "m1", LocketID: locketID}, nil)
	svc := newTestService(store, storagetest.New("https://cdn"), zap.NewNop())

	_, err := svc.Get(context.Background(), "u1", "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = svc.Get(context.Background(), "stranger", "m1")
	assert.True(t, apperr.Is(err, apperr.KindPermission))
}

func TestService_Delete(t *testing.T) {
	item := &MediaItem{ID: "m1", LocketID: locketID, StorageKey: key}

	t.Run("removes row then object", func(t *testing.T) {
		gw := storagetest.New("https://cdn")
		store := new(mockStore)
		store.On("GetByID", mock.Anything, "m1").Return(item, nil)
		store.On("Delete", mock.Anything, "m1").Return(item, nil)

		require.NoError(t, newTestService(store, gw, zap.NewNop()).Delete(context.Background(), "u2", "m1"))
		assert.Equal(t, []string{key}, gw.Deletes)
	})

	t.Run("storage failure is logged and swallowed", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		gw := storagetest.New("https://cdn")
		gw.DeleteErr = errors.New("storage unavailable")
		store := new(mockStore)
		store.On("GetByID", mock.Anything, "m1").Return(item, nil)
		store.On("Delete", mock.Anything, "m1").Return(item, nil)

		require.NoError(t, newTestService(store, gw, zap.New(core)).Delete(context.Background(), "u1", "m1"))
		require.Equal(t, 1, logs.Len())
		assert.Equal(t, key, logs.All()[0].ContextMap()["storage_key"])
	})

	t.Run("row failure skips storage", func(t *testing.T) {
		gw := storagetest.New("https://cdn")
		store := new(mockStore)
		store.On("GetByID", mock.Anything, "m1").Return(item, nil)
		store.On("Delete", mock.Anything, "m1").Return(nil, errors.New("db down"))

		err := newTestService(store, gw, zap.NewNop()).Delete(context.Background(), "u1", "m1")
		require.Error(t, err)
		assert.Empty(t, gw.Deletes)
	})
}

func serve(h *Handler, method, target, userID, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if userID != "" {
				req = req.WithContext(middleware.WithUserID(req.Context(), userID))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Post("/api/media", h.Register)
	r.Get("/api/media/{id}", h.Get)
	r.Get("/api/media/{id}/url", h.DownloadURL)
	r.Patch("/api/media/{id}", h.UpdateCaption)
	r.Delete("/api/media/{id}", h.Delete)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rr
}

func TestHandler_Register(t *testing.T) {
	store := new(mockStore)
	store.On("Create", mock.Anything, mock.Anything).Return(&MediaItem{ID: "m1", MemoryGroupID: groupID, StorageKey: key}, nil)
	h := NewHandler(newTestService(store, storagetest.New("https://cdn"), zap.NewNop()))

	body, err := json.Marshal(validInput())
	require.NoError(t, err)

	rr := serve(h, http.MethodPost, "/api/media", "u1", string(body))
	require.Equal(t, http.StatusCreated, rr.Code)
	var env struct {
		Data MediaItem `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.Equal(t, "m1", env.Data.ID)

	rr = serve(h, http.MethodPost, "/api/media", "stranger", string(body))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = serve(h, http.MethodPost, "/api/media", "", string(body))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = serve(h, http.MethodPost, "/api/media", "u1", `{"locket_id":"not-a-uuid"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandler_UpdateCaptionAndDelete(t *testing.T) {
	caption := "Sunset"
	item := &MediaItem{ID: "m1", LocketID: locketID, StorageKey: key}
	store := new(mockStore)
	store.On("GetByID", mock.Anything, "m1").Return(item, nil)
	store.On("UpdateCaption", mock.Anything, "m1", &caption).Return(&MediaItem{ID: "m1", Caption: &caption}, nil)
	store.On("Delete", mock.Anything, "m1").Return(item, nil)
	h := NewHandler(newTestService(store, storagetest.New("https://cdn"), zap.NewNop()))

	rr := serve(h, http.MethodPatch, "/api/media/m1", "u1", `{"caption":"Sunset"}`)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = serve(h, http.MethodDelete, "/api/media/m1", "u1", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
}
