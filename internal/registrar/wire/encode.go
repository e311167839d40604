// Package wire implements the XCP-style envelope protocol spoken by the
// domain registrar: encoding and signing of outbound requests and parsing of
// the tagged responses. It knows nothing about domains or orders.
package wire

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Request is one registrar command before encoding.
type Request struct {
	Action     string
	Object     string
	Attributes map[string]any
}

const envelopeHeader = `<?xml version='1.0' encoding='UTF-8' standalone='no' ?>` + "\n" +
	`<!DOCTYPE OPS_envelope SYSTEM 'ops.dtd'>` + "\n"

// Encode serializes the request into the tagged envelope. Map keys are
// emitted in sorted order so that encoding is deterministic and the request
// signature is reproducible.
func (r Request) Encode() (string, error) {
	attrs, err := encodeValue(r.Attributes)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(envelopeHeader)
	b.WriteString("<OPS_envelope>\n<header>\n<version>0.9</version>\n</header>\n<body>\n<data_block>\n<dt_assoc>\n")
	b.WriteString(`<item key="protocol">XCP</item>` + "\n")
	b.WriteString(`<item key="action">` + escape(r.Action) + "</item>\n")
	b.WriteString(`<item key="object">` + escape(r.Object) + "</item>\n")
	b.WriteString(`<item key="attributes">` + "\n" + attrs + "\n</item>\n")
	b.WriteString("</dt_assoc>\n</data_block>\n</body>\n</OPS_envelope>\n")
	return b.String(), nil
}

func encodeValue(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return escape(v), nil
	case bool:
		if v {
			return "1", nil
		}
		return "0", nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case map[string]any:
		return encodeAssoc(v)
	case []any:
		return encodeArray(v)
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		return encodeArray(items)
	default:
		return "", fmt.Errorf("wire: unsupported attribute type %T", value)
	}
}

func encodeAssoc(m map[string]any) (string, error) {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("<dt_assoc>")
	for _, key := range keys {
		encoded, err := encodeValue(m[key])
		if err != nil {
			return "", err
		}
		b.WriteString(`<item key="` + escape(key) + `">` + encoded + "</item>")
	}
	b.WriteString("</dt_assoc>")
	return b.String(), nil
}

func encodeArray(items []any) (string, error) {
	var b strings.Builder
	b.WriteString("<dt_array>")
	for i, item := range items {
		encoded, err := encodeValue(item)
		if err != nil {
			return "", err
		}
		b.WriteString(`<item key="` + strconv.Itoa(i) + `">` + encoded + "</item>")
	}
	b.WriteString("</dt_array>")
	return b.String(), nil
}

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func escape(s string) string {
	return escaper.Replace(s)
}

var unescaper = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&apos;", "'",
	"&amp;", "&",
)

func unescape(s string) string {
	return unescaper.Replace(s)
}
