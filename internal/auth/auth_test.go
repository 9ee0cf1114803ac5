package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/errs"
	"github.com/nexalabs/nexa/internal/settings"
)

func testService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	return NewService(db, "test-secret", settings.NewStore(db), nil), db
}

func login(t *testing.T, svc *Service) *LoginResult {
	t.Helper()
	_, err := svc.CreateUser("alice@example.com", "Alice", "correct horse", true)
	require.NoError(t, err)
	result, err := svc.Login(LoginInput{
		Email: "alice@example.com", Password: "correct horse",
		ClientIdentifier: "web-1", DeviceName: "Firefox", Platform: "web",
	})
	require.NoError(t, err)
	return result
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := testService(t)
	_, err := svc.CreateUser("alice@example.com", "Alice", "correct horse", false)
	require.NoError(t, err)

	_, err = svc.Login(LoginInput{Email: "alice@example.com", Password: "wrong", ClientIdentifier: "c"})
	assert.Equal(t, errs.Unauthenticated, errs.KindOf(err))

	_, err = svc.Login(LoginInput{Email: "nobody@example.com", Password: "x", ClientIdentifier: "c"})
	assert.Equal(t, errs.Unauthenticated, errs.KindOf(err))
}

func TestLoginUpsertsDevicePerClientIdentifier(t *testing.T) {
	svc, db := testService(t)
	_, err := svc.CreateUser("alice@example.com", "Alice", "correct horse", false)
	require.NoError(t, err)

	for _, name := range []string{"Old Name", "New Name"} {
		_, err := svc.Login(LoginInput{
			Email: "alice@example.com", Password: "correct horse",
			ClientIdentifier: "tv-1", DeviceName: name,
		})
		require.NoError(t, err)
	}

	var devices []database.Device
	require.NoError(t, db.Find(&devices).Error)
	require.Len(t, devices, 1)
	assert.Equal(t, "New Name", devices[0].Name)

	// Two logins opened two sessions on the one device.
	var count int64
	require.NoError(t, db.Model(&database.Session{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestVerifyAcceptsLiveSession(t *testing.T) {
	svc, _ := testService(t)
	result := login(t, svc)

	user, session, err := svc.Verify(result.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, result.Session.PublicID, session.PublicID)
}

func TestRevokedSessionRejectsToken(t *testing.T) {
	svc, _ := testService(t)
	result := login(t, svc)

	require.NoError(t, svc.Logout(result.Token))

	_, _, err := svc.Verify(result.Token)
	assert.Equal(t, errs.Unauthenticated, errs.KindOf(err))
}

func TestRefreshReissuesAndExtends(t *testing.T) {
	svc, _ := testService(t)
	result := login(t, svc)

	refreshed, err := svc.Refresh(result.Token)
	require.NoError(t, err)
	assert.False(t, refreshed.ExpiresAt.Before(result.ExpiresAt))

	_, _, err = svc.Verify(refreshed.Token)
	assert.NoError(t, err)
}

func TestTamperedTokenRejected(t *testing.T) {
	svc, _ := testService(t)
	result := login(t, svc)

	_, _, err := svc.Verify(result.Token + "x")
	assert.Equal(t, errs.Unauthenticated, errs.KindOf(err))

	other := NewService(nil, "other-secret", nil, nil)
	forged, err := other.sign(1, "fake-session", result.ExpiresAt)
	require.NoError(t, err)
	_, _, err = svc.Verify(forged)
	assert.Equal(t, errs.Unauthenticated, errs.KindOf(err))
}

func TestMiddlewareChallengesWithBearerHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _ := testService(t)
	result := login(t, svc)
	require.NoError(t, svc.Logout(result.Token))

	router := gin.New()
	router.GET("/protected", svc.Authenticated(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	// Revoked token: 401 plus the RFC 6750 challenge.
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+result.Token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `Bearer error="invalid_token"`)

	// No token at all.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdministratorMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _ := testService(t)

	_, err := svc.CreateUser("admin@example.com", "Admin", "correct horse", true)
	require.NoError(t, err)
	_, err = svc.CreateUser("bob@example.com", "Bob", "correct horse", false)
	require.NoError(t, err)

	adminLogin, err := svc.Login(LoginInput{Email: "admin@example.com", Password: "correct horse", ClientIdentifier: "a"})
	require.NoError(t, err)
	bobLogin, err := svc.Login(LoginInput{Email: "bob@example.com", Password: "correct horse", ClientIdentifier: "b"})
	require.NoError(t, err)

	router := gin.New()
	router.POST("/admin", svc.Authenticated(), svc.Administrator(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	call := func(token string) int {
		req := httptest.NewRequest(http.MethodPost, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call(adminLogin.Token))
	assert.Equal(t, http.StatusForbidden, call(bobLogin.Token))
}
