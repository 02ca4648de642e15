// Package charset converts between UTF-8 text and the GBK bytes used by legacy config files.
package charset

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// Legacy is the encoding files are written in.
var Legacy encoding.Encoding = simplifiedchinese.GBK

// readLegacy decodes files that are not valid UTF-8. GB18030 is a superset of
// GBK that also understands four-byte sequences, so GBK files decode unchanged.
var readLegacy encoding.Encoding = simplifiedchinese.GB18030

// Outcome is the result of decoding raw file bytes.
type Outcome struct {
	Text string
	// Fallback is set when the bytes were not valid UTF-8 and were decoded as GBK.
	Fallback bool
}

// Decode interprets raw as UTF-8 when valid, otherwise as GBK (GB18030).
// It never fails: malformed units are replaced with U+FFFD.
func Decode(raw []byte) Outcome {
	if utf8.Valid(raw) {
		return Outcome{Text: string(raw)}
	}
	decoded, err := readLegacy.NewDecoder().Bytes(raw)
	if err != nil {
		return Outcome{Text: strings.ToValidUTF8(string(raw), string(utf8.RuneError)), Fallback: true}
	}
	return Outcome{Text: string(decoded), Fallback: true}
}

// Probe repairs text that was produced by decoding GBK bytes as UTF-8.
// The UTF-8 bytes of text are reinterpreted as GBK, and that result is returned
// only if it is non-empty and text contains U+FFFD. Any U+FFFD counts as
// evidence, including ones unrelated to a GBK mix-up.
func Probe(text string) string {
	decoded, err := readLegacy.NewDecoder().String(text)
	if err == nil && decoded != "" && strings.ContainsRune(text, utf8.RuneError) {
		return decoded
	}
	return text
}

// Encode converts text to GBK. Runes GBK cannot represent are written as
// HTML numeric character references (&#NNNN;).
func Encode(text string) ([]byte, error) {
	out, err := encoding.HTMLEscapeUnsupported(Legacy.NewEncoder()).String(text)
	if err != nil {
		return nil, fmt.Errorf("gbk encode: %w", err)
	}
	return []byte(out), nil
}
