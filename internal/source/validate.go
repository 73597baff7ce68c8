package source

import (
	"fmt"
	"time"
)

// DateLayout is the schedule's date format.
const DateLayout = "02.01.2006"

// Status classifies a snapshot.
type Status string

const (
	// StatusNoData means the page carried no schedule: no date or no groups.
	StatusNoData Status = "no_data"

	// StatusOldData means the schedule is for a day before today.
	StatusOldData Status = "old_data"

	// StatusInvalidDate means the schedule date could not be parsed.
	StatusInvalidDate Status = "invalid_date"

	// StatusCurrentData means the schedule is for today.
	StatusCurrentData Status = "current_data"

	// StatusFutureData means the schedule is for a later day.
	StatusFutureData Status = "future_data"
)

// Validation is the outcome of Validate.
type Validation struct {
	Status  Status `json:"status"`
	Message string `json:"message"`

	// Date is the schedule date at midnight in the schedule's location,
	// set for current and future data.
	Date time.Time `json:"date,omitempty"`
}

// Usable reports whether the snapshot holds a schedule that may be reconciled.
func (v Validation) Usable() bool {
	return v.Status == StatusCurrentData || v.Status == StatusFutureData
}

// Failed reports whether the snapshot indicates a scrape that went wrong,
// as opposed to a page that legitimately lists nothing.
func (v Validation) Failed() bool {
	return v.Status == StatusOldData || v.Status == StatusInvalidDate
}

// Validate classifies s against today, evaluated in today's location.
func Validate(s *Snapshot, today time.Time) Validation {
	if s == nil || !s.DateFound || s.Date == "" || len(s.Groups) == 0 {
		return Validation{Status: StatusNoData, Message: "schedule is missing"}
	}

	loc := today.Location()
	date, err := time.ParseInLocation(DateLayout, s.Date, loc)
	if err != nil {
		return Validation{
			Status:  StatusInvalidDate,
			Message: fmt.Sprintf("schedule has an invalid date %q", s.Date),
		}
	}

	y, m, d := today.Date()
	todayDate := time.Date(y, m, d, 0, 0, 0, 0, loc)
	switch {
	case date.Before(todayDate):
		return Validation{
			Status:  StatusOldData,
			Message: fmt.Sprintf("schedule is stale: date %s, today %s", s.Date, todayDate.Format(DateLayout)),
		}
	case date.Equal(todayDate):
		return Validation{
			Status:  StatusCurrentData,
			Message: fmt.Sprintf("schedule is current: date %s", s.Date),
			Date:    date,
		}
	default:
		return Validation{
			Status:  StatusFutureData,
			Message: fmt.Sprintf("schedule is for a future date: %s", s.Date),
			Date:    date,
		}
	}
}
