package validators

import (
	"net/http"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const maxQueryLen = 128

// QueryString returns a trimmed query parameter capped at a sane length.
func QueryString(r *http.Request, key string) string {
	return SanitizeString(r.URL.Query().Get(key), maxQueryLen)
}

// ParseOptionalDate parses a YYYY-MM-DD value; empty input yields nil.
func ParseOptionalDate(field, raw string) (*types.Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	d, err := types.ParseDate(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDate, err, "dates must use YYYY-MM-DD").
			WithDetails(map[string]any{"field": field})
	}
	return &d, nil
}
