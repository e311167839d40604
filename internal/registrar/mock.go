package registrar

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/hostweaveapp/hostweave/internal/registrar/wire"
)

// Reserved prefixes driving deterministic mock availability.
const (
	mockTakenPrefix = "taken"
	mockTestPrefix  = "test"
)

// mockDenylist is unavailable only under .com.
var mockDenylist = map[string]bool{
	"example":  true,
	"mydomain": true,
	"website":  true,
	"domain":   true,
}

// MockTransport answers every command the client issues with deterministic,
// clearly-fake data so the rest of the system can run without a live
// registrar credential. Replies are built with the real envelope grammar and
// routed through wire.Decode, keeping the codec on the hot path.
type MockTransport struct {
	now func() time.Time
}

func NewMockTransport() *MockTransport {
	return &MockTransport{now: time.Now}
}

func (m *MockTransport) Send(ctx context.Context, req wire.Request) (*wire.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, &wire.TransportError{Err: err}
	}

	domain := mockAttrString(req.Attributes, "domain")
	success := true
	code := 200
	text := "Command successful"
	var attrs map[string]any

	switch req.Action + "/" + req.Object {
	case actionLookup + "/" + objectDomain:
		attrs = m.lookup(domain)
	case actionRegister + "/" + objectDomain:
		if !mockAvailable(domain) {
			success, code, text = false, 465, "Domain taken"
			break
		}
		attrs = map[string]any{
			"id":          mockRef("ORDER", domain),
			"domain_id":   mockRef("DOM", domain),
			"expiry_date": m.now().AddDate(mockPeriod(req.Attributes), 0, 0).Format(expiryDateLayout),
		}
	case actionTransfer + "/" + objectDomain:
		attrs = map[string]any{
			"id": mockRef("XFER", domain),
		}
	case actionRenew + "/" + objectDomain:
		attrs = map[string]any{
			"id":              mockRef("RENEW", domain),
			"new_expiry_date": m.now().AddDate(mockPeriod(req.Attributes)+1, 0, 0).Format(expiryDateLayout),
		}
	case actionGet + "/" + objectDomain:
		attrs = map[string]any{
			"expiry_date":     m.now().AddDate(1, 0, 0).Format(expiryDateLayout),
			"nameserver_list": []any{"ns1.hostweave.net", "ns2.hostweave.net"},
			"lock_state":      "1",
			"privacy_state":   "0",
			"auto_renew":      "1",
		}
	case actionModify + "/" + objectDomain:
		attrs = map[string]any{}
	case actionAuthCode + "/" + objectDomain:
		attrs = map[string]any{
			"auth_code": mockRef("EPP", domain),
		}
	case actionGet + "/" + objectDNS:
		attrs = map[string]any{
			"records": []any{
				map[string]any{"type": "A", "host": "@", "value": "203.0.113.10", "ttl": 3600, "priority": 0},
				map[string]any{"type": "CNAME", "host": "www", "value": domain + ".", "ttl": 3600, "priority": 0},
			},
		}
	case actionModify + "/" + objectDNS:
		attrs = map[string]any{}
	case actionOrderSSL + "/" + objectSSL:
		attrs = map[string]any{
			"id":        mockRef("SSL", domain),
			"dcv_email": "admin@" + domain,
		}
	default:
		success, code, text = false, 400, fmt.Sprintf("unknown command %s/%s", req.Action, req.Object)
	}

	raw, err := wire.EncodeReply(success, code, text, attrs)
	if err != nil {
		return nil, err
	}
	return wire.Decode(raw)
}

func (m *MockTransport) lookup(domain string) map[string]any {
	if mockAvailable(domain) {
		return map[string]any{"status": "available"}
	}
	return map[string]any{"status": "taken", "reason": "registered"}
}

func mockAvailable(domain string) bool {
	sld, tld := splitDomain(domain)
	switch {
	case strings.HasPrefix(sld, mockTakenPrefix):
		return false
	case strings.HasPrefix(sld, mockTestPrefix):
		return true
	case mockDenylist[sld] && tld == "com":
		return false
	default:
		return true
	}
}

func splitDomain(domain string) (sld, tld string) {
	sld = strings.ToLower(domain)
	if idx := strings.IndexByte(sld, '.'); idx >= 0 {
		return sld[:idx], sld[idx+1:]
	}
	return sld, ""
}

// mockRef derives a stable placeholder identifier from the domain so
// repeated calls agree with each other.
func mockRef(kind, domain string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(domain))
	return fmt.Sprintf("MOCK-%s-%d", kind, h.Sum32())
}

func mockPeriod(attrs map[string]any) int {
	if period, ok := attrs["period"].(int); ok && period > 0 {
		return period
	}
	return 1
}

func mockAttrString(attrs map[string]any, key string) string {
	value, _ := attrs[key].(string)
	return value
}
