package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Mark23Dev/project-nexus/services/order-service/controllers"
	"github.com/Mark23Dev/project-nexus/services/order-service/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRoutes_RequireIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterOrderRoutes(r, controllers.NewOrderController(nil), middleware.GatewayIdentityProvider{})
	RegisterProductRoutes(r, controllers.NewProductController(nil), middleware.GatewayIdentityProvider{})

	customer := uuid.NewString()
	tests := []struct {
		method, path string
		userID       string
		status       int
	}{
		{http.MethodGet, "/orders", "", http.StatusUnauthorized},
		{http.MethodPost, "/orders", "", http.StatusUnauthorized},
		{http.MethodPatch, "/orders/" + uuid.NewString() + "/status", customer, http.StatusForbidden},
		{http.MethodDelete, "/admin/products/" + uuid.NewString(), customer, http.StatusForbidden},
		{http.MethodPatch, "/admin/products/" + uuid.NewString(), "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		if tt.userID != "" {
			req.Header.Set("X-User-ID", tt.userID)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, tt.status, w.Code, "%s %s", tt.method, tt.path)
	}
}
