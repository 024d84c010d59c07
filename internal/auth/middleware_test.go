package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthRouter(manager *JWTManager, roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	group := router.Group("/", AuthMiddleware(manager))
	if len(roles) > 0 {
		group.Use(RoleMiddleware(roles...))
	}
	group.GET("/protected", func(c *gin.Context) {
		id, _ := GetUserIDFromContext(c)
		c.JSON(http.StatusOK, gin.H{"user_id": id.String()})
	})

	return router
}

func doRequest(router *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	router := newAuthRouter(NewJWTManager("test-secret", time.Hour))

	w := doRequest(router, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddlewareRejectsExpiredToken(t *testing.T) {
	manager := NewJWTManager("test-secret", -time.Minute)
	token, err := manager.GenerateToken(uuid.New(), "analyst@example.com", RoleAnalyst)
	require.NoError(t, err)

	w := doRequest(newAuthRouter(manager), token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "expired")
}

func TestAuthMiddlewarePassesValidToken(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour)
	userID := uuid.New()
	token, err := manager.GenerateToken(userID, "analyst@example.com", RoleAnalyst)
	require.NoError(t, err)

	w := doRequest(newAuthRouter(manager), token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), userID.String())
}

func TestRoleMiddlewareEnforcesRoles(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour)
	router := newAuthRouter(manager, RoleAdmin, RoleAnalyst)

	analystToken, err := manager.GenerateToken(uuid.New(), "analyst@example.com", RoleAnalyst)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, doRequest(router, analystToken).Code)

	viewerToken, err := manager.GenerateToken(uuid.New(), "viewer@example.com", RoleViewer)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, doRequest(router, viewerToken).Code)
}

func TestOptionalAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	manager := NewJWTManager("test-secret", time.Hour)
	userID := uuid.New()

	router := gin.New()
	router.GET("/open", OptionalAuthMiddleware(manager), func(c *gin.Context) {
		if id, ok := GetUserIDFromContext(c); ok {
			c.String(http.StatusOK, id.String())
			return
		}
		c.String(http.StatusOK, "anonymous")
	})

	// Anonymous requests pass through
	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "anonymous", w.Body.String())

	// Valid tokens identify the user
	token, err := manager.GenerateToken(userID, "analyst@example.com", RoleAnalyst)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/open", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, userID.String(), w.Body.String())
}

func TestValidatePasswordStrength(t *testing.T) {
	assert.True(t, ValidatePasswordStrength("Str0ngEnough"))
	assert.False(t, ValidatePasswordStrength("Sh0rt"))
	assert.False(t, ValidatePasswordStrength("alllowercase1"))
	assert.False(t, ValidatePasswordStrength("ALLUPPERCASE1"))
	assert.False(t, ValidatePasswordStrength("NoDigitsHere"))
}
