package appointments

import (
	"fmt"
	"net/url"
	"strings"

	"cloud.google.com/go/civil"

	"rentview/internal/models"
)

// EncodeFilter renders f as query parameters (status, from, to).
func EncodeFilter(f Filter) url.Values {
	q := url.Values{}
	if len(f.Statuses) > 0 {
		parts := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			parts[i] = string(s)
		}
		q.Set("status", strings.Join(parts, ","))
	}
	if f.From != (civil.Date{}) {
		q.Set("from", f.From.String())
	}
	if f.To != (civil.Date{}) {
		q.Set("to", f.To.String())
	}
	return q
}

// DecodeFilter parses query parameters produced by EncodeFilter. Legacy
// status spellings are normalized.
func DecodeFilter(q url.Values) (Filter, error) {
	var f Filter
	if raw := q.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, err := models.NormalizeStatus(part)
			if err != nil {
				return Filter{}, fmt.Errorf("status %q: %w", part, err)
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	if raw := q.Get("from"); raw != "" {
		d, err := civil.ParseDate(raw)
		if err != nil {
			return Filter{}, fmt.Errorf("from: %w", err)
		}
		f.From = d
	}
	if raw := q.Get("to"); raw != "" {
		d, err := civil.ParseDate(raw)
		if err != nil {
			return Filter{}, fmt.Errorf("to: %w", err)
		}
		f.To = d
	}
	return f, nil
}
