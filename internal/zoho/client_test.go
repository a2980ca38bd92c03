package zoho

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himplant/crmsync/internal/logger"
	"github.com/himplant/crmsync/internal/retry"
	"github.com/himplant/crmsync/internal/syncerr"
)

type staticTokens struct {
	mu          sync.Mutex
	tokens      []string
	invalidated int
}

func (s *staticTokens) AccessToken(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[min(s.invalidated, len(s.tokens)-1)], nil
}

func (s *staticTokens) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated++
}

func newTestClient(t *testing.T, handler http.HandlerFunc, tokens TokenProvider) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	if tokens == nil {
		tokens = &staticTokens{tokens: []string{"tok"}}
	}
	return NewClient(logger.Discard(), srv.URL, tokens, retry.New(logger.Discard()), 0)
}

func TestSearchNoContent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Contacts/search", r.URL.Path)
		assert.Equal(t, "(Email:equals:a@x.com)", r.URL.Query().Get("criteria"))
		assert.Equal(t, "Zoho-oauthtoken tok", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}, nil)

	records, err := client.Search(context.Background(), ModuleContacts, Equals("Email", "a@x.com"))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSearchReturnsRecords(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":[{"id":"4150868000000224005","Email":"a@x.com","Mailing_Street":null}],"info":{"count":1}}`)
	}, nil)

	records, err := client.Search(context.Background(), ModuleContacts, Equals("Email", "a@x.com"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "4150868000000224005", records[0].ID())
	assert.Equal(t, "", records[0].String("Mailing_Street"))
}

func TestSearchServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, nil)

	_, err := client.Search(context.Background(), ModuleLeads, Equals("Email", "a@x.com"))
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindDownstream))
}

func TestRateLimitAfterRetriesIsUnavailable(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"data":[{"code":"TOO_MANY_REQUESTS","details":{},"message":"rate limited","status":"error"}]}`)
	}))
	t.Cleanup(srv.Close)
	exec := retry.New(logger.Discard(), retry.WithSleep(func(context.Context, time.Duration) error { return nil }))
	client := NewClient(logger.Discard(), srv.URL, &staticTokens{tokens: []string{"tok"}}, exec, 0)

	_, err := client.Search(context.Background(), ModuleLeads, Equals("Email", "a@x.com"))
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindUpstreamUnavailable))
	assert.Equal(t, retry.DefaultAttempts, calls)

	_, err = client.Create(context.Background(), ModuleEvents, Record{"Event_Title": "x"})
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindUpstreamUnavailable))
	assert.Contains(t, err.Error(), "TOO_MANY_REQUESTS")
}

func TestCreateReturnsID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/Leads", r.URL.Path)

		var payload struct {
			Data []map[string]any `json:"data"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Len(t, payload.Data, 1)
		assert.Equal(t, "Doe", payload.Data[0]["Last_Name"])

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"data":[{"code":"SUCCESS","details":{"id":"L1"},"message":"record added","status":"success"}]}`)
	}, nil)

	id, err := client.Create(context.Background(), ModuleLeads, Record{"Last_Name": "Doe"})
	require.NoError(t, err)
	assert.Equal(t, "L1", id)
}

func TestWriteRecordErrorIsDownstream(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusMultiStatus)
		_, _ = io.WriteString(w, `{"data":[{"code":"INVALID_DATA","details":{},"message":"invalid data","status":"error"}]}`)
	}, nil)

	err := client.Update(context.Background(), ModuleEvents, "E1", Record{"Meeting_Status": "Canceled"})
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindDownstream))
	assert.Contains(t, err.Error(), "INVALID_DATA")
}

func TestUpdateSendsID(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		var payload struct {
			Data []map[string]any `json:"data"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		got = payload.Data[0]
		_, _ = io.WriteString(w, `{"data":[{"code":"SUCCESS","details":{"id":"E1"},"status":"success"}]}`)
	}, nil)

	require.NoError(t, client.Update(context.Background(), ModuleEvents, "E1", Record{"Meeting_Status": "Canceled"}))
	assert.Equal(t, "E1", got["id"])
	assert.Equal(t, "Canceled", got["Meeting_Status"])

	err := client.Update(context.Background(), ModuleEvents, "", Record{})
	assert.True(t, syncerr.Is(err, syncerr.KindValidation))
}

func TestUnauthorizedRefreshesOnce(t *testing.T) {
	tokens := &staticTokens{tokens: []string{"stale", "fresh"}}
	var seen []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		seen = append(seen, auth)
		if auth != "Zoho-oauthtoken fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"code":"INVALID_TOKEN","message":"invalid oauth token"}`)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}, tokens)

	_, err := client.Search(context.Background(), ModuleLeads, Equals("Email", "a@x.com"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Zoho-oauthtoken stale", "Zoho-oauthtoken fresh"}, seen)
	assert.Equal(t, 1, tokens.invalidated)
}

func TestUnauthorizedTwiceIsAuth(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, nil)

	_, err := client.Search(context.Background(), ModuleLeads, Equals("Email", "a@x.com"))
	assert.True(t, syncerr.Is(err, syncerr.KindAuth))
}

func TestEscapeCriteria(t *testing.T) {
	assert.Equal(t, `(Last_Name:equals:Smith\, Jr \(II\))`, Equals("Last_Name", "Smith, Jr (II)"))
	assert.Equal(t, "+15551234567", EscapeCriteria("+15551234567"))
}
