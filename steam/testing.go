package steam

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hashicorp/steamcap/openid"
)

// TestAPIKey is the api key a TestWebAPI accepts unless constructed with
// another one.
const TestAPIKey APIKey = "test-api-key"

// TestWebAPI is a local Steam Web API serving GetPlayerSummaries, which
// makes writing tests much easier.  Requests without the expected api key
// get a 403, as the real API does.
type TestWebAPI struct {
	httpServer *httptest.Server
	apiKey     APIKey

	mu          sync.Mutex
	players     map[string]json.RawMessage
	status      int
	rawResponse []byte
	requests    int
	lastQuery   url.Values
}

// StartTestWebAPI creates and starts a TestWebAPI accepting apiKey.  It's
// stopped when the test completes.
func StartTestWebAPI(t *testing.T, apiKey APIKey) *TestWebAPI {
	t.Helper()
	a := &TestWebAPI{
		apiKey:  apiKey,
		players: map[string]json.RawMessage{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc(playerSummariesPath, a.handlePlayerSummaries)
	a.httpServer = httptest.NewServer(mux)
	t.Cleanup(a.Stop)
	return a
}

// Stop the TestWebAPI.
func (a *TestWebAPI) Stop() {
	a.httpServer.Close()
}

// Addr is the base URL to use with WithAPIURL.
func (a *TestWebAPI) Addr() string { return a.httpServer.URL }

// SetPlayer sets the player summary returned for steamID.  A nil summary
// removes the player.
func (a *TestWebAPI) SetPlayer(t *testing.T, steamID string, summary map[string]interface{}) {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	if summary == nil {
		delete(a.players, steamID)
		return
	}
	b, err := json.Marshal(summary)
	require.NoError(t, err)
	a.players[steamID] = b
}

// SetStatus makes every request fail with status code.  Zero restores
// normal responses.
func (a *TestWebAPI) SetStatus(code int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = code
}

// SetRawResponse makes every request return body verbatim with a 200.  Nil
// restores normal responses.
func (a *TestWebAPI) SetRawResponse(body []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rawResponse = body
}

// Requests returns the number of requests received.
func (a *TestWebAPI) Requests() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requests
}

// LastQuery returns the query of the last request received.
func (a *TestWebAPI) LastQuery() url.Values {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastQuery
}

func (a *TestWebAPI) handlePlayerSummaries(w http.ResponseWriter, req *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests++
	q := req.URL.Query()
	a.lastQuery = q

	switch {
	case req.Method != http.MethodGet:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	case q.Get("key") != string(a.apiKey):
		w.WriteHeader(http.StatusForbidden)
		return
	case a.status != 0:
		w.WriteHeader(a.status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if a.rawResponse != nil {
		_, _ = w.Write(a.rawResponse)
		return
	}
	var body playerSummariesResponse
	body.Response.Players = []json.RawMessage{}
	if p, ok := a.players[q.Get("steamids")]; ok {
		body.Response.Players = append(body.Response.Players, p)
	}
	_ = json.NewEncoder(w).Encode(body)
}

// MockRelyingParty is a RelyingParty with canned results, for tests that
// don't need a TestProvider.
type MockRelyingParty struct {
	AuthURLResult string
	AuthURLError  error
	Assertion     *openid.Assertion
	VerifyError   error

	mu          sync.Mutex
	verifyCalls int
}

var _ RelyingParty = (*MockRelyingParty)(nil)

// AuthURL returns AuthURLResult and AuthURLError.
func (m *MockRelyingParty) AuthURL(context.Context, string, bool) (string, error) {
	return m.AuthURLResult, m.AuthURLError
}

// Verify returns Assertion and VerifyError.
func (m *MockRelyingParty) Verify(context.Context, *http.Request) (*openid.Assertion, error) {
	m.mu.Lock()
	m.verifyCalls++
	m.mu.Unlock()
	return m.Assertion, m.VerifyError
}

// VerifyCalls returns the number of times Verify was called.
func (m *MockRelyingParty) VerifyCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verifyCalls
}
