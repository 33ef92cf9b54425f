package model

import (
	"fmt"
	"time"
)

// LocalDate is a custom time type to format time as "YYYY-MM-DD".
type LocalDate time.Time

const dateFormat = "2006-01-02"

// MarshalJSON implements the json.Marshaler interface.
func (d LocalDate) MarshalJSON() ([]byte, error) {
	if time.Time(d).IsZero() {
		return []byte(`""`), nil
	}
	formatted := fmt.Sprintf("\"%s\"", time.Time(d).Format(dateFormat))
	return []byte(formatted), nil
}

// String returns the date in "YYYY-MM-DD" form.
func (d LocalDate) String() string {
	return time.Time(d).Format(dateFormat)
}
