package crawler

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// Text decodes the response body permissively: the charset is sniffed from
// the Content-Type header and the body itself, invalid byte sequences are
// replaced with U+FFFD, and decoding never fails.
func (r Response) Text() string {
	contentType := ""
	if r.Headers != nil {
		contentType = r.Headers.Get("Content-Type")
	}
	enc, _, _ := charset.DetermineEncoding(r.Body, contentType)
	if enc != nil {
		decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(r.Body), enc.NewDecoder()))
		if err == nil {
			return strings.ToValidUTF8(string(decoded), "�")
		}
	}
	return strings.ToValidUTF8(string(r.Body), "�")
}
