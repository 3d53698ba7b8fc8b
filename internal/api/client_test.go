package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "regdesk/internal/errors"
	"regdesk/internal/registration"
)

func newClientServer(t *testing.T, reg Registrar) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(newTestServer(reg, Options{}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Pending(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	reg := &fakeRegistrar{pending: []registration.Request{
		{ID: "r1", Username: "alice", Password: "password1", Email: "a@x.com", Status: registration.StatusPending, CreateDate: created},
	}}
	srv := newClientServer(t, reg)

	got, err := NewClient(srv.URL+"/", "secret", nil).Pending(context.Background())
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].ID)
	assert.Equal(t, "alice", got[0].Username)
	assert.Equal(t, "a@x.com", got[0].Email)
	assert.Empty(t, got[0].Password)
	assert.True(t, created.Equal(got[0].CreateDate))
}

func TestClient_ApproveAndReject(t *testing.T) {
	reg := &fakeRegistrar{request: &registration.Request{ID: "r1"}, accountID: "acc-9"}
	srv := newClientServer(t, reg)
	c := NewClient(srv.URL, "secret", srv.Client())

	accountID, err := c.Approve(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "acc-9", accountID)

	require.NoError(t, c.Reject(context.Background(), "r2"))

	assert.Equal(t, []string{"approve:r1:admin-1", "reject:r2:admin-1"}, reg.processed)
}

func TestClient_ServerErrors(t *testing.T) {
	tests := []struct {
		name      string
		reg       *fakeRegistrar
		token     string
		wantCode  string
		wantMsg   string
		retryable bool
	}{
		{
			name:     "already processed",
			reg:      &fakeRegistrar{approveErr: registration.ErrNotFoundOrProcessed},
			token:    "secret",
			wantCode: apperrors.CodeNotFound,
			wantMsg:  apperrors.ErrRequestNotFound.UserMsg,
		},
		{
			name:     "bad token",
			reg:      &fakeRegistrar{},
			token:    "wrong",
			wantCode: apperrors.CodeUnauthorized,
			wantMsg:  apperrors.ErrUnauthorized.UserMsg,
		},
		{
			name:      "storage failure",
			reg:       &fakeRegistrar{approveErr: &registration.StorageError{Op: "save", Path: "r.json", Err: errors.New("disk full")}},
			token:     "secret",
			wantCode:  apperrors.CodeRegistration,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newClientServer(t, tt.reg)

			_, err := NewClient(srv.URL, tt.token, nil).Approve(context.Background(), "r1")
			require.Error(t, err)

			var userErr *apperrors.UserError
			require.ErrorAs(t, err, &userErr)
			assert.Equal(t, tt.wantCode, userErr.Code)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, userErr.UserMsg)
			}
			assert.Equal(t, tt.retryable, apperrors.IsRetryable(err))
		})
	}
}

func TestClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	err := NewClient(srv.URL, "secret", nil).Reject(context.Background(), "r1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "bad gateway")
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, "secret", nil).Pending(context.Background())
	assert.ErrorContains(t, err, "send request")
}
