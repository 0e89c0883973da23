// Package export renders shaped search results into the formats the CLI
// produces: semicolon CSV, a pre-wired CRM workbook, GeoJSON, a standalone
// Leaflet map and an ESRI shapefile.
package export

import (
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Encoding selects the character encoding of text exports.
type Encoding string

const (
	// EncodingUTF8 writes UTF-8 prefixed with a byte-order mark so Excel
	// picks up accented characters without an import wizard.
	EncodingUTF8 Encoding = "utf-8"
	// EncodingLatin1 transcodes to ISO 8859-1 for tools that predate
	// Unicode. Characters outside the charset are replaced.
	EncodingLatin1 Encoding = "latin1"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// encodedWriter wraps w according to the requested encoding. The UTF-8 BOM
// is written immediately.
func encodedWriter(w io.Writer, enc Encoding) (io.Writer, error) {
	switch enc {
	case "", EncodingUTF8:
		if _, err := w.Write(utf8BOM); err != nil {
			return nil, eris.Wrap(err, "export: write byte-order mark")
		}
		return w, nil
	case EncodingLatin1:
		return encoding.ReplaceUnsupported(charmap.ISO8859_1.NewEncoder()).Writer(w), nil
	default:
		return nil, eris.Errorf("export: unsupported encoding %q", enc)
	}
}

// formatOptionalFloat renders a nullable number, empty when absent.
func formatOptionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
