package common

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainParam(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		rawValue  string
		wantValue string
		wantErr   string
	}{
		{name: "plain", rawValue: "incidents", wantValue: "incidents"},
		{name: "encoded underscore", rawValue: "employee%5Fhealth", wantValue: "employee_health"},
		{name: "encoded space", rawValue: "bad%20name", wantErr: `invalid domain: "bad name" has characters outside [A-Za-z0-9_.-]`},
		{name: "encoded slash", rawValue: "a%2Fb", wantErr: `invalid domain: "a/b" has characters outside [A-Za-z0-9_.-]`},
		{name: "empty", rawValue: "", wantErr: "invalid domain: name is empty"},
		{name: "invalid encoding", rawValue: "bad%zz", wantErr: "invalid domain: bad escape sequence"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("domain", tt.rawValue)
			req := httptest.NewRequest(http.MethodGet, "/v1/sync/status/x", nil)
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

			got, err := DomainParam(req)
			if tt.wantErr != "" {
				require.ErrorIs(t, err, ErrInvalidDomainParam)
				assert.Equal(t, tt.wantErr, err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantValue, got)
		})
	}
}
