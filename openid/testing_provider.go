package openid

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hashicorp/steamcap/sdk/id"
)

// TestDefaultClaimedID is the claimed identifier a TestProvider asserts for
// identifier_select requests unless SetClaimedID is used.
const TestDefaultClaimedID = "https://steamcommunity.com/openid/id/76561197960287930"

const testSignedFields = "op_endpoint,claimed_id,identity,return_to,response_nonce,assoc_handle"

// TestProvider is a local OpenID 2.0 OP which makes writing tests much
// easier.  It serves:
//
//   - /openid            OP identifier discovery (XRDS, or HTML see SetHTMLDiscovery)
//   - /openid/yadis      an X-XRDS-Location redirect to /openid
//   - /openid/id/{id}    claimed identifier discovery (XRDS signon)
//   - /openid/login      checkid_setup, checkid_immediate and check_authentication
//
// Positive assertions are HMAC-SHA256 signed with a private association
// that only the TestProvider knows, so they can only be verified with
// check_authentication.  Each response nonce is accepted by
// check_authentication once.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	mu              sync.Mutex
	claimedID       string
	opEndpoint      string
	cancel          bool
	providerError   string
	checkAuthError  string
	rejectAll       bool
	htmlDiscovery   bool
	nowFunc         func() time.Time
	associations    map[string][]byte
	usedNonces      map[string]bool
	checkAuthCalls  int
	lastAuthRequest url.Values
}

// StartTestProvider creates and starts a TestProvider.  It's stopped when the
// test completes.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	require := require.New(t)

	p := &TestProvider{
		claimedID:    TestDefaultClaimedID,
		associations: map[string][]byte{},
		usedNonces:   map[string]bool{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/openid", p.handleDiscovery)
	mux.HandleFunc("/openid/yadis", p.handleYadisRedirect)
	mux.HandleFunc("/openid/id/", p.handleClaimedIDDiscovery)
	mux.HandleFunc("/openid/login", p.handleLogin)

	p.httpServer = httptest.NewUnstartedServer(mux)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: p.httpServer.Certificate().Raw})
	require.NoError(err)
	p.caCert = buf.String()
	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// Addr returns the base URL of the TestProvider.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the TestProvider.
func (p *TestProvider) CACert() string { return p.caCert }

// Client returns an http client which trusts the TestProvider.
func (p *TestProvider) Client() *http.Client { return p.httpServer.Client() }

// DiscoveryURL returns the OP identifier of the TestProvider.
func (p *TestProvider) DiscoveryURL() string { return p.Addr() + "/openid" }

// OPEndpoint returns the endpoint the TestProvider advertises in discovery.
func (p *TestProvider) OPEndpoint() string { return p.Addr() + "/openid/login" }

// SetClaimedID sets the claimed identifier asserted for identifier_select
// requests.
func (p *TestProvider) SetClaimedID(claimedID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.claimedID = claimedID
}

// SetOPEndpoint overrides the op_endpoint sent in positive assertions.
// check_authentication requests are still answered at OPEndpoint().
func (p *TestProvider) SetOPEndpoint(endpoint string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opEndpoint = endpoint
}

// SetCancel makes authentication requests return a negative assertion.
func (p *TestProvider) SetCancel(cancel bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancel = cancel
}

// SetProviderError makes authentication requests return an error response
// with the given message.  An empty message disables it.
func (p *TestProvider) SetProviderError(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.providerError = msg
}

// SetCheckAuthError makes check_authentication requests fail with a 400 and
// the given error message.  An empty message disables it.
func (p *TestProvider) SetCheckAuthError(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkAuthError = msg
}

// SetRejectAll makes check_authentication answer is_valid:false.
func (p *TestProvider) SetRejectAll(reject bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rejectAll = reject
}

// SetHTMLDiscovery makes /openid serve an HTML document with OpenID 2.0
// link elements instead of XRDS.
func (p *TestProvider) SetHTMLDiscovery(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.htmlDiscovery = enabled
}

// SetNowFunc sets the clock used to timestamp response nonces.
func (p *TestProvider) SetNowFunc(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nowFunc = now
}

// CheckAuthCalls returns the number of check_authentication requests
// received.
func (p *TestProvider) CheckAuthCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checkAuthCalls
}

// LastAuthRequest returns the parameters of the most recent authentication
// request.
func (p *TestProvider) LastAuthRequest() url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastAuthRequest
}

// Login follows authURL as a user agent would and returns the URL the
// TestProvider redirected back to.
func (p *TestProvider) Login(authURL string) (string, error) {
	const op = "openid.(TestProvider).Login"
	c := *p.Client()
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	resp, err := c.Get(authURL)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%s: unexpected status %d: %s", op, resp.StatusCode, b)
	}
	return resp.Header.Get("Location"), nil
}

func (p *TestProvider) now() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.nowFunc != nil {
		return p.nowFunc()
	}
	return time.Now()
}

const testXRDSTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<xrds:XRDS xmlns:xrds="xri://$xrds" xmlns="xri://$xrd*($v*2.0)">
	<XRD>
		<Service priority="0">
			<Type>%s</Type>
			<URI>%s</URI>
		</Service>
	</XRD>
</xrds:XRDS>
`

const testHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
	<title>OpenID</title>
	<link rel="openid2.provider" href="%s">
</head>
<body></body>
</html>
`

func (p *TestProvider) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	p.mu.Lock()
	html := p.htmlDiscovery
	p.mu.Unlock()
	if html {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, testHTMLTemplate, p.OPEndpoint())
		return
	}
	w.Header().Set("Content-Type", xrdsContentType+"; charset=utf-8")
	fmt.Fprintf(w, testXRDSTemplate, ServerType, p.OPEndpoint())
}

func (p *TestProvider) handleYadisRedirect(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set(xrdsLocation, p.DiscoveryURL())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><head></head><body></body></html>")
}

func (p *TestProvider) handleClaimedIDDiscovery(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", xrdsContentType+"; charset=utf-8")
	fmt.Fprintf(w, testXRDSTemplate, SignonType, p.OPEndpoint())
}

func (p *TestProvider) handleLogin(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	switch mode := req.Form.Get("openid.mode"); mode {
	case modeCheckIDSetup, modeCheckIDImmediate:
		p.handleCheckID(w, req)
	case modeCheckAuth:
		p.handleCheckAuthentication(w, req)
	default:
		p.writeKeyValue(w, http.StatusBadRequest, map[string]string{
			"ns":    NS,
			"error": fmt.Sprintf("unsupported mode %q", mode),
		})
	}
}

func (p *TestProvider) handleCheckID(w http.ResponseWriter, req *http.Request) {
	q := req.Form
	returnTo := q.Get("openid.return_to")
	rt, err := url.Parse(returnTo)
	if returnTo == "" || err != nil {
		http.Error(w, "invalid openid.return_to", http.StatusBadRequest)
		return
	}
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastAuthRequest = openIDParams(q)

	resp := rt.Query()
	resp.Set("openid.ns", NS)
	switch {
	case p.cancel:
		resp.Set("openid.mode", modeCancel)
	case p.providerError != "":
		resp.Set("openid.mode", modeError)
		resp.Set("openid.error", p.providerError)
	default:
		claimedID := q.Get("openid.claimed_id")
		if claimedID == "" || claimedID == IdentifierSelect {
			claimedID = p.claimedID
		}
		opEndpoint := p.opEndpoint
		if opEndpoint == "" {
			opEndpoint = p.OPEndpoint()
		}
		handle, err := id.New("assoc")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		suffix, err := id.New("")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		key := make([]byte, sha256.Size)
		if _, err := rand.Read(key); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		p.associations[handle] = key

		resp.Set("openid.mode", modeIDRes)
		resp.Set("openid.op_endpoint", opEndpoint)
		resp.Set("openid.claimed_id", claimedID)
		resp.Set("openid.identity", claimedID)
		resp.Set("openid.return_to", returnTo)
		resp.Set("openid.response_nonce", newNonceTimestamp(now)+suffix)
		resp.Set("openid.assoc_handle", handle)
		resp.Set("openid.signed", testSignedFields)
		sig, err := testSign(key, resp)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		resp.Set("openid.sig", sig)
	}
	rt.RawQuery = resp.Encode()
	http.Redirect(w, req, rt.String(), http.StatusFound)
}

func (p *TestProvider) handleCheckAuthentication(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "check_authentication requires POST", http.StatusMethodNotAllowed)
		return
	}
	f := req.PostForm

	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkAuthCalls++
	if p.checkAuthError != "" {
		p.writeKeyValue(w, http.StatusBadRequest, map[string]string{"ns": NS, "error": p.checkAuthError})
		return
	}

	valid := !p.rejectAll
	key, ok := p.associations[f.Get("openid.assoc_handle")]
	if !ok {
		valid = false
	}
	if valid {
		want, err := testSign(key, f)
		if err != nil || !hmac.Equal([]byte(want), []byte(f.Get("openid.sig"))) {
			valid = false
		}
	}
	nonce := f.Get("openid.response_nonce")
	if valid && p.usedNonces[nonce] {
		valid = false
	}
	if valid {
		p.usedNonces[nonce] = true
	}
	p.writeKeyValue(w, http.StatusOK, map[string]string{"ns": NS, "is_valid": fmt.Sprintf("%t", valid)})
}

func (p *TestProvider) writeKeyValue(w http.ResponseWriter, status int, kv map[string]string) {
	b, err := encodeKeyValue(kv)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

// testSign computes the signature over the fields listed in openid.signed.
func testSign(key []byte, params url.Values) (string, error) {
	signed := strings.Split(params.Get("openid.signed"), ",")
	kv := make(map[string]string, len(signed))
	for _, f := range signed {
		kv[f] = params.Get("openid." + f)
	}
	msg, err := encodeKeyValue(kv, signed...)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}
