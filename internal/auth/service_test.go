package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/twofold/corner/internal/apperr"
	"github.com/twofold/corner/internal/middleware"
	"github.com/twofold/corner/internal/user"
)

const testSecret = "test-secret"

type memCodes struct {
	codes map[string]*loginCode
	seq   int
	// raced makes Redeem behave as if another request consumed the code first.
	raced bool
}

func newMemCodes() *memCodes { return &memCodes{codes: map[string]*loginCode{}} }

func (m *memCodes) Issue(_ context.Context, email, code string, expiresAt time.Time) error {
	m.seq++
	m.codes[email] = &loginCode{ID: string(rune('a' + m.seq)), Email: email, Code: code, ExpiresAt: expiresAt}
	return nil
}

func (m *memCodes) Pending(_ context.Context, email string) (*loginCode, error) {
	c, ok := m.codes[email]
	if !ok || c.UsedAt != nil {
		return nil, ErrCodeNotFound
	}
	return c, nil
}

func (m *memCodes) Redeem(_ context.Context, id string) error {
	if m.raced {
		return ErrCodeNotFound
	}
	for _, c := range m.codes {
		if c.ID == id && c.UsedAt == nil {
			now := time.Now()
			c.UsedAt = &now
			return nil
		}
	}
	return ErrCodeNotFound
}

type mockUsers struct {
	mock.Mock
}

func (m *mockUsers) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(*user.User)
	return u, args.Error(1)
}

func (m *mockUsers) Create(ctx context.Context, email string, displayName *string) (*user.User, error) {
	args := m.Called(ctx, email, displayName)
	u, _ := args.Get(0).(*user.User)
	return u, args.Error(1)
}

type captureMailer struct {
	codes map[string]string
}

func (c *captureMailer) SendLoginCode(_ context.Context, email, code string) error {
	if c.codes == nil {
		c.codes = map[string]string{}
	}
	c.codes[email] = code
	return nil
}

func (c *captureMailer) SendInvite(context.Context, string, string, string) error { return nil }

func TestService_SendCodeAndVerify(t *testing.T) {
	ctx := context.Background()
	codes := newMemCodes()
	mailer := &captureMailer{}
	users := new(mockUsers)
	users.On("GetByEmail", mock.Anything, "sam@example.com").
		Return(&user.User{ID: "u1", Email: "sam@example.com"}, nil)
	svc := NewService(codes, users, mailer, testSecret)

	require.NoError(t, svc.SendCode(ctx, " Sam@Example.com "))
	code := mailer.codes["sam@example.com"]
	require.Len(t, code, 6)

	res, err := svc.Verify(ctx, "sam@example.com", code, nil)
	require.NoError(t, err)
	assert.False(t, res.IsNewUser)
	assert.Equal(t, "u1", res.User.ID)

	parsed, err := jwt.Parse(res.Token, func(*jwt.Token) (interface{}, error) { return []byte(testSecret), nil })
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "u1", claims["sub"])
	assert.Equal(t, "sam@example.com", claims["email"])

	_, err = svc.Verify(ctx, "sam@example.com", code, nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation), "codes are single use")
}

func TestService_Verify_CreatesUser(t *testing.T) {
	ctx := context.Background()
	name := "Alex"
	codes := newMemCodes()
	require.NoError(t, codes.Issue(ctx, "alex@example.com", "123456", time.Now().Add(time.Minute)))

	users := new(mockUsers)
	users.On("GetByEmail", mock.Anything, "alex@example.com").Return(nil, apperr.NotFound("user not found"))
	users.On("Create", mock.Anything, "alex@example.com", &name).
		Return(&user.User{ID: "u2", Email: "alex@example.com", DisplayName: &name}, nil)

	res, err := NewService(codes, users, &captureMailer{}, testSecret).Verify(ctx, "alex@example.com", "123456", &name)
	require.NoError(t, err)
	assert.True(t, res.IsNewUser)
	assert.Equal(t, "u2", res.User.ID)
	users.AssertExpectations(t)
}

func TestService_Verify_Rejects(t *testing.T) {
	ctx := context.Background()
	codes := newMemCodes()
	require.NoError(t, codes.Issue(ctx, "sam@example.com", "123456", time.Now().Add(time.Minute)))
	svc := NewService(codes, new(mockUsers), &captureMailer{}, testSecret)

	_, err := svc.Verify(ctx, "sam@example.com", "654321", nil)
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.Verify(ctx, "nobody@example.com", "123456", nil)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestService_Verify_LosesRedeemRace(t *testing.T) {
	ctx := context.Background()
	codes := newMemCodes()
	require.NoError(t, codes.Issue(ctx, "sam@example.com", "123456", time.Now().Add(time.Minute)))
	codes.raced = true
	users := new(mockUsers)
	svc := NewService(codes, users, &captureMailer{}, testSecret)

	_, err := svc.Verify(ctx, "sam@example.com", "123456", nil)
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	users.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
}

func TestHandler_VerifyCode_SetsSessionCookie(t *testing.T) {
	codes := newMemCodes()
	require.NoError(t, codes.Issue(context.Background(), "sam@example.com", "123456", time.Now().Add(time.Minute)))
	users := new(mockUsers)
	users.On("GetByEmail", mock.Anything, "sam@example.com").
		Return(&user.User{ID: "u1", Email: "sam@example.com"}, nil)
	h := NewHandler(NewService(codes, users, &captureMailer{}, testSecret), true)

	body := `{"email":"sam@example.com","code":"123456"}`
	rr := httptest.NewRecorder()
	h.VerifyCode(rr, httptest.NewRequest(http.MethodPost, "/api/auth/code/verify", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rr.Code)

	var env struct {
		Data verifyCodeData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.NotEmpty(t, env.Data.Token)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, middleware.SessionCookie, cookies[0].Name)
	assert.Equal(t, env.Data.Token, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
}

func TestHandler_Validation(t *testing.T) {
	h := NewHandler(NewService(newMemCodes(), new(mockUsers), &captureMailer{}, testSecret), false)

	cases := []struct {
		name    string
		handler http.HandlerFunc
		body    string
	}{
		{"send bad email", h.SendCode, `{"email":"nope"}`},
		{"verify short code", h.VerifyCode, `{"email":"sam@example.com","code":"12"}`},
		{"verify empty", h.VerifyCode, ``},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			tc.handler(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body)))
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestHandler_Logout(t *testing.T) {
	h := NewHandler(NewService(newMemCodes(), new(mockUsers), &captureMailer{}, testSecret), false)
	rr := httptest.NewRecorder()
	h.Logout(rr, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}
