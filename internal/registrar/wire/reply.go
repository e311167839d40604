package wire

import (
	"strconv"
	"strings"
)

// EncodeReply builds a response envelope with the same tag grammar the live
// endpoint produces. The mock transport uses it so that responses still
// travel through Decode and exercise the full codec path.
func EncodeReply(success bool, code int, text string, attrs map[string]any) (string, error) {
	marker := "0"
	if success {
		marker = "1"
	}

	var b strings.Builder
	b.WriteString(envelopeHeader)
	b.WriteString("<OPS_envelope>\n<header>\n<version>0.9</version>\n</header>\n<body>\n<data_block>\n<dt_assoc>\n")
	b.WriteString(`<item key="protocol">XCP</item>` + "\n")
	b.WriteString(`<item key="action">REPLY</item>` + "\n")
	b.WriteString(`<item key="is_success">` + marker + "</item>\n")
	b.WriteString(`<item key="response_code">` + strconv.Itoa(code) + "</item>\n")
	b.WriteString(`<item key="response_text">` + escape(text) + "</item>\n")
	if attrs != nil {
		encoded, err := encodeValue(attrs)
		if err != nil {
			return "", err
		}
		b.WriteString(`<item key="attributes">` + "\n" + encoded + "\n</item>\n")
	}
	b.WriteString("</dt_assoc>\n</data_block>\n</body>\n</OPS_envelope>\n")
	return b.String(), nil
}
