package reprocess

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/priceline/replacement-pricer/server/internal/model"
)

// EncodeCursor renders a keyset position as an opaque base64 string
// encoding (updated_at, id) in UTC (spec §6: "Decoder must be
// timezone-unambiguous").
func EncodeCursor(c model.Cursor) string {
	raw := fmt.Sprintf("%s|%s", c.UpdatedAt.UTC().Format(time.RFC3339Nano), c.ID)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses an opaque cursor. A malformed cursor never fails the
// request — it returns (nil, false) so the caller starts from the
// beginning (spec §6).
func DecodeCursor(s string) (*model.Cursor, bool) {
	if s == "" {
		return nil, false
	}
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, false
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return nil, false
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return nil, false
	}
	if parts[1] == "" {
		return nil, false
	}
	return &model.Cursor{UpdatedAt: ts.UTC(), ID: parts[1]}, true
}
