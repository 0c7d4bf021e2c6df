package task

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Strob0t/Tasktrack/internal/domain"
)

// Date is a due date accepted as RFC 3339 or as a plain YYYY-MM-DD day.
type Date time.Time

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: due_date must be a string", domain.ErrValidation)
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			*d = Date(t.UTC())
			return nil
		}
	}
	return fmt.Errorf("%w: due_date %q is not RFC 3339 or YYYY-MM-DD", domain.ErrValidation, s)
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(d).Format(time.RFC3339))
}

// Time returns d as a time.Time.
func (d Date) Time() time.Time { return time.Time(d) }
