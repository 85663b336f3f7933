package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/huangang/teamspace/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("test-secret-for-middleware-testing")
}

func protectedRouter() *gin.Engine {
	router := gin.New()
	router.Use(AuthRequired())
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(200, gin.H{"user_id": GetUserID(c), "username": GetUsername(c)})
	})
	return router
}

func TestAuthRequired_NoCredentials(t *testing.T) {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/protected", nil)
	protectedRouter().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestAuthRequired_InvalidFormat(t *testing.T) {
	router := protectedRouter()

	testCases := []string{
		"InvalidToken",
		"Basic token123",
		"Bearer",
		"Bearer ",
	}

	for _, authHeader := range testCases {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", authHeader)
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("header %q: expected status %d, got %d", authHeader, http.StatusUnauthorized, w.Code)
		}
	}
}

func TestAuthRequired_InvalidToken(t *testing.T) {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer invalid.jwt.token")
	protectedRouter().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestAuthRequired_ValidHeader(t *testing.T) {
	token, _ := utils.GenerateToken(7, "alice", 24)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	protectedRouter().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if body := w.Body.String(); body != `{"user_id":7,"username":"alice"}` {
		t.Errorf("unexpected body %s", body)
	}
}

func TestAuthRequired_QueryToken(t *testing.T) {
	token, _ := utils.GenerateToken(3, "bob", 24)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/protected?token="+token, nil)
	protectedRouter().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
}

func TestAuthRequired_HeaderWinsOverQuery(t *testing.T) {
	token, _ := utils.GenerateToken(3, "bob", 24)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/protected?token="+token, nil)
	req.Header.Set("Authorization", "Bearer broken")
	protectedRouter().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestGetUserID(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if id := GetUserID(c); id != 0 {
		t.Errorf("expected 0 for missing user_id, got %d", id)
	}

	c.Set(ContextUserID, "not-a-uint")
	if id := GetUserID(c); id != 0 {
		t.Errorf("expected 0 for wrong type, got %d", id)
	}

	c.Set(ContextUserID, uint(42))
	if id := GetUserID(c); id != 42 {
		t.Errorf("expected 42, got %d", id)
	}
}

func TestGetUsername(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if name := GetUsername(c); name != "" {
		t.Errorf("expected empty string for missing username, got %q", name)
	}

	c.Set(ContextUsername, "testuser")
	if name := GetUsername(c); name != "testuser" {
		t.Errorf("expected %q, got %q", "testuser", name)
	}
}
