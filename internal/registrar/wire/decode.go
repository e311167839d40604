package wire

import (
	"strconv"
	"strings"
)

// Response is a decoded registrar reply.
type Response struct {
	Action     string
	Object     string
	Code       int
	Text       string
	Attributes map[string]any
}

// Decode parses a tagged response envelope. The wire format is not
// well-formed XML (bare DOCTYPE, unencoded entities in some fields), so a
// cursor-based recursive-descent parser walks it directly instead of going
// through an XML library. Whitespace between tags is tolerated.
//
// A structurally valid envelope whose top-level is_success marker is "0"
// yields a *ProviderError carrying the provider's code and text; structural
// corruption yields a *ParseError.
func Decode(raw string) (*Response, error) {
	start := strings.Index(raw, "<data_block>")
	if start < 0 {
		return nil, &ParseError{Offset: 0, Message: "missing data block"}
	}

	c := &cursor{data: raw, pos: start + len("<data_block>")}
	value, err := c.parseValue()
	if err != nil {
		return nil, err
	}
	c.skipSpace()
	if err := c.expect("</data_block>"); err != nil {
		return nil, err
	}

	top, ok := value.(map[string]any)
	if !ok {
		return nil, &ParseError{Offset: start, Message: "top-level value must be an assoc"}
	}

	resp := &Response{
		Action: stringField(top, "action"),
		Object: stringField(top, "object"),
		Text:   stringField(top, "response_text"),
	}
	if codeText := stringField(top, "response_code"); codeText != "" {
		code, convErr := strconv.Atoi(strings.TrimSpace(codeText))
		if convErr != nil {
			return nil, &ParseError{Offset: start, Message: "response_code is not numeric: " + codeText}
		}
		resp.Code = code
	}
	if attrs, ok := top["attributes"].(map[string]any); ok {
		resp.Attributes = attrs
	}

	success, ok := top["is_success"]
	if !ok {
		return nil, &ParseError{Offset: start, Message: "missing is_success marker"}
	}
	if marker, _ := success.(string); strings.TrimSpace(marker) != "1" {
		return nil, &ProviderError{Code: resp.Code, Text: resp.Text}
	}

	return resp, nil
}

type cursor struct {
	data string
	pos  int
}

func (c *cursor) skipSpace() {
	for c.pos < len(c.data) {
		switch c.data[c.pos] {
		case ' ', '\t', '\r', '\n':
			c.pos++
		default:
			return
		}
	}
}

func (c *cursor) peek(token string) bool {
	return strings.HasPrefix(c.data[c.pos:], token)
}

func (c *cursor) consume(token string) bool {
	if c.peek(token) {
		c.pos += len(token)
		return true
	}
	return false
}

func (c *cursor) expect(token string) error {
	if !c.consume(token) {
		return &ParseError{Offset: c.pos, Message: "expected " + token}
	}
	return nil
}

// readUntil returns the text before delim and advances past it.
func (c *cursor) readUntil(delim string) (string, error) {
	idx := strings.Index(c.data[c.pos:], delim)
	if idx < 0 {
		return "", &ParseError{Offset: c.pos, Message: "missing " + delim}
	}
	text := c.data[c.pos : c.pos+idx]
	c.pos += idx + len(delim)
	return text, nil
}

func (c *cursor) parseValue() (any, error) {
	c.skipSpace()
	switch {
	case c.peek("<dt_assoc>"):
		return c.parseAssoc()
	case c.peek("<dt_array>"):
		return c.parseArray()
	default:
		return nil, &ParseError{Offset: c.pos, Message: "expected dt_assoc or dt_array"}
	}
}

func (c *cursor) parseAssoc() (map[string]any, error) {
	if err := c.expect("<dt_assoc>"); err != nil {
		return nil, err
	}

	result := make(map[string]any)
	for {
		c.skipSpace()
		if c.consume("</dt_assoc>") {
			return result, nil
		}
		if c.pos >= len(c.data) {
			return nil, &ParseError{Offset: c.pos, Message: "missing closing dt_assoc tag"}
		}

		key, value, err := c.parseItem()
		if err != nil {
			return nil, err
		}
		result[key] = value
	}
}

func (c *cursor) parseArray() ([]any, error) {
	if err := c.expect("<dt_array>"); err != nil {
		return nil, err
	}

	var result []any
	for {
		c.skipSpace()
		if c.consume("</dt_array>") {
			return result, nil
		}
		if c.pos >= len(c.data) {
			return nil, &ParseError{Offset: c.pos, Message: "missing closing dt_array tag"}
		}

		_, value, err := c.parseItem()
		if err != nil {
			return nil, err
		}
		result = append(result, value)
	}
}

func (c *cursor) parseItem() (string, any, error) {
	if err := c.expect(`<item key="`); err != nil {
		return "", nil, err
	}
	key, err := c.readUntil(`"`)
	if err != nil {
		return "", nil, err
	}
	if err := c.expect(">"); err != nil {
		return "", nil, err
	}

	value, err := c.parseItemBody()
	if err != nil {
		return "", nil, err
	}
	return unescape(key), value, nil
}

// parseItemBody handles the two item shapes: a nested assoc/array, or raw
// scalar text running up to the closing tag. Scalar whitespace is preserved.
func (c *cursor) parseItemBody() (any, error) {
	mark := c.pos
	c.skipSpace()
	if c.peek("<dt_assoc>") || c.peek("<dt_array>") {
		value, err := c.parseValue()
		if err != nil {
			return nil, err
		}
		c.skipSpace()
		if err := c.expect("</item>"); err != nil {
			return nil, err
		}
		return value, nil
	}

	c.pos = mark
	text, err := c.readUntil("</item>")
	if err != nil {
		return nil, &ParseError{Offset: mark, Message: "missing closing item tag"}
	}
	return unescape(text), nil
}

func stringField(m map[string]any, key string) string {
	value, _ := m[key].(string)
	return value
}
