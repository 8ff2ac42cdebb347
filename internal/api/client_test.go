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

	"github.com/qiminjie89/rtsession/pkg/auth"
)

func newTestClient(t *testing.T, h http.HandlerFunc, token string) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:    srv.URL + "/",
		TicketPath: "/api/ws/ticket",
		LeavePath:  "/api/games/rooms/%s/leave",
		Timeout:    time.Second,
	}, auth.NewStore(token), nil)
}

func TestTicket(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/ws/ticket", r.URL.Path)
		assert.Equal(t, "Bearer long-lived", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ticket":"abc","expires_in":30}`))
	}, "long-lived")

	before := time.Now()
	ticket, err := c.Ticket(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", ticket.Token)
	assert.WithinDuration(t, before.Add(30*time.Second), ticket.ExpiresAt, 2*time.Second)
	assert.True(t, ticket.Valid(time.Now()))
}

func TestTicketWithoutExpiry(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ticket":"opaque"}`))
	}, "tok")

	ticket, err := c.Ticket(context.Background())
	require.NoError(t, err)
	assert.True(t, ticket.ExpiresAt.IsZero())
}

func TestTicketErrors(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		status  int
		body    string
		wantErr error
	}{
		{name: "no credential", token: "", wantErr: ErrUnauthorized},
		{name: "rejected credential", token: "tok", status: http.StatusUnauthorized, body: `{"error":"Invalid token"}`, wantErr: ErrUnauthorized},
		{name: "empty ticket", token: "tok", status: http.StatusOK, body: `{}`},
		{name: "server error", token: "tok", status: http.StatusInternalServerError, body: `oops`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, tt.token)

			_, err := c.Ticket(context.Background())
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestLeaveRoom(t *testing.T) {
	var path string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message":"left"}`))
	}, "tok")

	require.NoError(t, c.LeaveRoom(context.Background(), "42"))
	assert.Equal(t, "/api/games/rooms/42/leave", path)
}

func TestLeaveRoomNotParticipant(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":"FORBIDDEN","message":"Not a participant in this room"}}`))
	}, "tok")

	err := c.LeaveRoom(context.Background(), "42")
	assert.ErrorIs(t, err, ErrNotParticipant)

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
}

func TestOtherForbiddenIsNotParticipantError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"banned"}`))
	}, "tok")

	err := c.LeaveRoom(context.Background(), "42")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotParticipant))
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "a", errorMessage([]byte(`{"error":"a"}`)))
	assert.Equal(t, "b", errorMessage([]byte(`{"error":{"message":"b"}}`)))
	assert.Equal(t, "c", errorMessage([]byte(`{"message":"c"}`)))
	assert.Equal(t, "plain", errorMessage([]byte("plain\n")))
}
