package registrar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hostweaveapp/hostweave/internal/observability"
	"github.com/hostweaveapp/hostweave/internal/registrar/wire"
)

// Transport delivers an encoded command to the registrar and returns the
// decoded reply. It is an explicit strategy so the mock/live choice is made
// once, by the factory, instead of by a hidden mode flag.
type Transport interface {
	Send(ctx context.Context, req wire.Request) (*wire.Response, error)
}

// callTimeout bounds every registrar round-trip; a timed-out call surfaces
// as a retryable transport error.
const callTimeout = 15 * time.Second

type httpTransport struct {
	endpoint string
	username string
	apiKey   string
	client   *http.Client
}

// NewHTTPTransport returns the live transport. Requests are signed with the
// reseller key and authenticated via the username/signature headers.
func NewHTTPTransport(endpoint, username, apiKey string) Transport {
	return &httpTransport{
		endpoint: endpoint,
		username: username,
		apiKey:   apiKey,
		client:   observability.NewHTTPClient(callTimeout),
	}
}

func (t *httpTransport) Send(ctx context.Context, req wire.Request) (*wire.Response, error) {
	body, err := req.Encode()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build registrar request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "text/xml")
	httpReq.Header.Set("X-Username", t.username)
	httpReq.Header.Set("X-Signature", wire.Sign(body, t.apiKey))

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, &wire.TransportError{Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &wire.TransportError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &wire.TransportError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("unexpected registrar status %d", resp.StatusCode),
		}
	}

	return wire.Decode(string(payload))
}
