package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPIStub(t *testing.T) (*httptest.Server, *http.ServeMux) {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, mux
}

func TestNewRequiresServer(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestLogin(t *testing.T) {
	srv, mux := newAPIStub(t)
	mux.HandleFunc("/api/admin/login", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "correct" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": "invalid credentials", "code": "UNAUTHORIZED",
			})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(LoginResult{
			Token:     "session-token",
			ExpiresAt: time.Now().Add(time.Hour),
		})
	})

	c, err := New(srv.URL)
	require.NoError(t, err)

	result, err := c.Login(context.Background(), "correct")
	require.NoError(t, err)
	assert.Equal(t, "session-token", result.Token)

	_, err = c.Login(context.Background(), "wrong")
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Equal(t, "invalid credentials", httpErr.Message)
	assert.Equal(t, "UNAUTHORIZED", httpErr.Code)
}

func TestListContactsSendsFiltersAndToken(t *testing.T) {
	srv, mux := newAPIStub(t)
	mux.HandleFunc("/api/admin/contacts", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer session-token", r.Header.Get("Authorization"))
		assert.Equal(t, "false", r.URL.Query().Get("read"))
		assert.Equal(t, "pricing", r.URL.Query().Get("q"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ContactList{
			Contacts: []Contact{{ID: "c-1", Name: "Ada", Email: "ada@example.com"}},
			Count:    1,
		})
	})

	c, err := New(srv.URL, WithToken("session-token"))
	require.NoError(t, err)

	read := false
	list, err := c.ListContacts(context.Background(), ListOptions{
		Read:  &read,
		Query: "pricing",
		Limit: 10,
	})
	require.NoError(t, err)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "c-1", list.Contacts[0].ID)
}

func TestGetContactNotFound(t *testing.T) {
	srv, mux := newAPIStub(t)
	mux.HandleFunc("/api/admin/contacts/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error": "contact not found: nope", "code": "NOT_FOUND",
		})
	})

	c, err := New(srv.URL)
	require.NoError(t, err)

	_, err = c.GetContact(context.Background(), "nope")
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}

func TestMarkReadAndUnread(t *testing.T) {
	srv, mux := newAPIStub(t)
	var calls []string
	mux.HandleFunc("/api/admin/contacts/c-1/read", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "read")
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/api/admin/contacts/c-1/unread", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "unread")
		w.WriteHeader(http.StatusNoContent)
	})

	c, err := New(srv.URL)
	require.NoError(t, err)

	require.NoError(t, c.MarkRead(context.Background(), "c-1"))
	require.NoError(t, c.MarkUnread(context.Background(), "c-1"))
	assert.Equal(t, []string{"read", "unread"}, calls)
}

func TestSendTestMail(t *testing.T) {
	srv, mux := newAPIStub(t)
	mux.HandleFunc("/api/admin/testmail", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		receiver := body["receiver"]
		if receiver == "" {
			receiver = "admin@example.com"
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(TestMailResult{
			Receiver: receiver, Host: "smtp.test", Mechanism: "XOAUTH2",
		})
	})

	c, err := New(srv.URL)
	require.NoError(t, err)

	result, err := c.SendTestMail(context.Background(), "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", result.Receiver)

	result, err = c.SendTestMail(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", result.Receiver)
}

func TestGetStats(t *testing.T) {
	srv, mux := newAPIStub(t)
	mux.HandleFunc("/api/admin/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Stats{Total: 7, Unread: 2})
	})

	c, err := New(srv.URL)
	require.NoError(t, err)

	stats, err := c.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, stats.Total)
	assert.Equal(t, 2, stats.Unread)
}
