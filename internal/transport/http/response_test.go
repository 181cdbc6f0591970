package httptransport

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"sortvision-gateway/internal/app/services"
	domainauth "sortvision-gateway/internal/domain/auth"
	"sortvision-gateway/internal/domain/blob"
	"sortvision-gateway/internal/platform/errors"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"superseded", services.ErrSuperseded, http.StatusConflict},
		{"capacity", errors.Wrap(errors.KindDomain, "blob.new", "register", blob.ErrCapacity), http.StatusServiceUnavailable},
		{"transport", errors.New(errors.KindTransport, "op", "down"), http.StatusBadGateway},
		{"format", errors.New(errors.KindFormat, "op", "bad"), http.StatusBadGateway},
		{"truncation", errors.New(errors.KindTruncation, "op", "cut"), http.StatusBadGateway},
		{"metadata", errors.New(errors.KindMetadata, "op", "none"), http.StatusBadGateway},
		{"vision", errors.New(errors.KindVision, "op", "bad image"), http.StatusBadRequest},
		{"domain", errors.New(errors.KindDomain, "op", "unknown label"), http.StatusBadRequest},
		{"storage", errors.New(errors.KindStorage, "op", "disk"), http.StatusInternalServerError},
		{"plain", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusForError(tt.err))
		})
	}
}

func TestClientIdentity_Header(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(ClientIdentity(nil, nil))
	engine.GET("/whoami", func(c *gin.Context) { c.String(http.StatusOK, ClientID(c)) })

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(ClientIDHeader, " sorter-3\r\n")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, "sorter-3", rec.Body.String())

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.Equal(t, AnonymousClient, rec.Body.String())
}

func TestClientIdentity_Bearer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := domainauth.NewAuthToken("secret")
	engine := gin.New()
	engine.Use(ClientIdentity(tokens, nil))
	engine.GET("/whoami", func(c *gin.Context) { c.String(http.StatusOK, ClientID(c)) })

	token, err := tokens.GenerateToken("sorter-9")
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(ClientIDHeader, "spoofed")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, "sorter-9", rec.Body.String())

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
