package openid

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/yhat/scrape"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hashicorp/steamcap/internal/strutils"
)

const (
	// NS is the OpenID 2.0 namespace.
	NS = "http://specs.openid.net/auth/2.0"

	// IdentifierSelect is sent as claimed_id and identity when the user
	// picks their identifier at the OP.
	IdentifierSelect = "http://specs.openid.net/auth/2.0/identifier_select"

	// ServerType is the XRDS service type of an OP identifier element.
	ServerType = "http://specs.openid.net/auth/2.0/server"

	// SignonType is the XRDS service type of a claimed identifier element.
	SignonType = "http://specs.openid.net/auth/2.0/signon"

	xrdsContentType = "application/xrds+xml"
	xrdsLocation    = "X-XRDS-Location"

	maxDiscoveryBody = 1 << 20
	maxYadisHops     = 3
)

// Endpoint is the result of discovery on an identifier.
type Endpoint struct {
	// URL is the OP endpoint that authentication requests are sent to.
	URL string

	// OPIdentifier is true when the identifier was an OP identifier and the
	// user selects their claimed identifier at the OP.
	OPIdentifier bool

	// ClaimedID is the normalized identifier discovery was performed on.
	// Empty for OP identifiers.
	ClaimedID string

	// LocalID is the OP-local identifier, if the discovered information
	// names one.
	LocalID string
}

// Discover performs discovery on the user supplied identifier.  Yadis is
// tried first; if the identifier does not resolve to an XRDS document the
// HTML document it resolves to is searched for OpenID 2.0 link elements.
func (rp *RelyingParty) Discover(ctx context.Context, identifier string) (*Endpoint, error) {
	const op = "openid.(RelyingParty).Discover"
	if identifier == "" {
		return nil, fmt.Errorf("%s: identifier is empty: %w", op, ErrInvalidParameter)
	}
	id, err := normalizeIdentifier(identifier)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	target := id
	for hop := 0; hop < maxYadisHops; hop++ {
		rp.logger.Debug("discovery request", "op", op, "url", target)
		body, contentType, header, err := rp.fetchDiscovery(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if isXRDS(contentType) {
			ep, err := parseXRDS(body, id)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			return ep, nil
		}
		if loc := header.Get(xrdsLocation); loc != "" {
			target = loc
			continue
		}
		ep, loc, err := parseHTML(body, id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if ep != nil {
			return ep, nil
		}
		if loc == "" {
			break
		}
		target = loc
	}
	return nil, fmt.Errorf("%s: no OpenID 2.0 endpoint found for %q: %w", op, id, ErrDiscoveryFailed)
}

func (rp *RelyingParty) fetchDiscovery(ctx context.Context, target string) ([]byte, string, http.Header, error) {
	const op = "openid.(RelyingParty).fetchDiscovery"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", nil, fmt.Errorf("%s: unable to create request for %q: %w", op, target, err)
	}
	req.Header.Set("Accept", xrdsContentType+", text/html;q=0.9, */*;q=0.1")
	resp, err := rp.client.Do(req)
	if err != nil {
		return nil, "", nil, fmt.Errorf("%s: request to %q failed: %v: %w", op, target, err, ErrDiscoveryFailed)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", nil, fmt.Errorf("%s: %q returned status %d: %w", op, target, resp.StatusCode, ErrDiscoveryFailed)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDiscoveryBody))
	if err != nil {
		return nil, "", nil, fmt.Errorf("%s: unable to read response from %q: %v: %w", op, target, err, ErrDiscoveryFailed)
	}
	return body, resp.Header.Get("Content-Type"), resp.Header, nil
}

func normalizeIdentifier(identifier string) (string, error) {
	const op = "openid.normalizeIdentifier"
	id := strings.TrimSpace(identifier)
	if !strings.Contains(id, "://") {
		id = "http://" + id
	}
	u, err := url.Parse(id)
	if err != nil {
		return "", fmt.Errorf("%s: identifier %q is not a URL: %w", op, identifier, ErrInvalidParameter)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%s: identifier %q is not an http(s) URL: %w", op, identifier, ErrInvalidParameter)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%s: identifier %q has no host: %w", op, identifier, ErrInvalidParameter)
	}
	u.Fragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

func isXRDS(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == xrdsContentType
}

type xrdsService struct {
	priority int
	types    []string
	uri      string
	localID  string
}

// parseXRDS selects the OpenID 2.0 endpoint from the final XRD of an XRDS
// document.  OP identifier elements are preferred over claimed identifier
// elements; within each kind the lowest priority value wins.
func parseXRDS(doc []byte, claimedID string) (*Endpoint, error) {
	const op = "openid.parseXRDS"
	d := etree.NewDocument()
	if err := d.ReadFromBytes(doc); err != nil {
		return nil, fmt.Errorf("%s: unable to parse XRDS document: %v: %w", op, err, ErrDiscoveryFailed)
	}
	xrds := d.FindElements("//XRD")
	if len(xrds) == 0 {
		return nil, fmt.Errorf("%s: XRDS document has no XRD element: %w", op, ErrDiscoveryFailed)
	}
	xrd := xrds[len(xrds)-1]

	var services []xrdsService
	for _, el := range xrd.SelectElements("Service") {
		svc := xrdsService{
			priority: xrdsPriority(el),
		}
		for _, t := range el.SelectElements("Type") {
			svc.types = append(svc.types, strings.TrimSpace(t.Text()))
		}
		uris := el.SelectElements("URI")
		sort.SliceStable(uris, func(i, j int) bool {
			return xrdsPriority(uris[i]) < xrdsPriority(uris[j])
		})
		if len(uris) > 0 {
			svc.uri = strings.TrimSpace(uris[0].Text())
		}
		if l := el.SelectElement("LocalID"); l != nil {
			svc.localID = strings.TrimSpace(l.Text())
		}
		if svc.uri != "" {
			services = append(services, svc)
		}
	}
	sort.SliceStable(services, func(i, j int) bool {
		return services[i].priority < services[j].priority
	})

	for _, want := range []string{ServerType, SignonType} {
		for _, svc := range services {
			if !strutils.StrListContains(svc.types, want) {
				continue
			}
			if want == ServerType {
				return &Endpoint{URL: svc.uri, OPIdentifier: true}, nil
			}
			return &Endpoint{URL: svc.uri, ClaimedID: claimedID, LocalID: svc.localID}, nil
		}
	}
	return nil, fmt.Errorf("%s: XRDS document has no OpenID 2.0 service: %w", op, ErrDiscoveryFailed)
}

// xrdsPriority returns the priority attribute of an element; a missing or
// invalid priority sorts last.
func xrdsPriority(el *etree.Element) int {
	p, err := strconv.Atoi(el.SelectAttrValue("priority", ""))
	if err != nil || p < 0 {
		return int(^uint(0) >> 1)
	}
	return p
}

// parseHTML looks for OpenID 2.0 HTML-based discovery link elements.  When
// none are present, the value of an X-XRDS-Location meta element is returned
// so Yadis can continue.
func parseHTML(doc []byte, claimedID string) (*Endpoint, string, error) {
	const op = "openid.parseHTML"
	root, err := html.Parse(strings.NewReader(string(doc)))
	if err != nil {
		return nil, "", fmt.Errorf("%s: unable to parse HTML document: %v: %w", op, err, ErrDiscoveryFailed)
	}
	if provider, ok := scrape.Find(root, linkRel("openid2.provider")); ok {
		href := strings.TrimSpace(scrape.Attr(provider, "href"))
		if href != "" {
			ep := &Endpoint{URL: href, ClaimedID: claimedID}
			if local, ok := scrape.Find(root, linkRel("openid2.local_id")); ok {
				ep.LocalID = strings.TrimSpace(scrape.Attr(local, "href"))
			}
			return ep, "", nil
		}
	}
	if meta, ok := scrape.Find(root, metaHTTPEquiv(xrdsLocation)); ok {
		return nil, strings.TrimSpace(scrape.Attr(meta, "content")), nil
	}
	return nil, "", nil
}

func linkRel(rel string) scrape.Matcher {
	return func(n *html.Node) bool {
		if n.DataAtom != atom.Link {
			return false
		}
		for _, r := range strings.Fields(scrape.Attr(n, "rel")) {
			if strings.EqualFold(r, rel) {
				return true
			}
		}
		return false
	}
}

func metaHTTPEquiv(name string) scrape.Matcher {
	return func(n *html.Node) bool {
		return n.DataAtom == atom.Meta && strings.EqualFold(scrape.Attr(n, "http-equiv"), name)
	}
}
