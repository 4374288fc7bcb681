package scheduler

import (
	"sort"

	"cloud.google.com/go/civil"
)

// Booking is the scheduling view of a reservation used for conflict checks.
type Booking struct {
	ID       string
	WorkerID string
	Date     civil.Date
	Time     civil.Time
	Status   Status
}

// SameSlot decides whether two bookings on the given dates compete for the
// worker's time. Commitments are whole-day.
//
// TODO: accept start time and estimated duration here once interval
// scheduling is enabled for workers that take several jobs per day.
func SameSlot(a, b civil.Date) bool {
	return a == b
}

// FindConflicts returns the bookings of workerID on date whose status is in
// statuses, ordered by date, time and id. Bookings with other statuses never
// conflict.
func FindConflicts(existing []Booking, workerID string, date civil.Date, statuses []Status) []Booking {
	var out []Booking
	for _, b := range existing {
		if b.WorkerID != workerID || !SameSlot(b.Date, date) {
			continue
		}
		if !hasStatus(statuses, b.Status) {
			continue
		}
		out = append(out, b)
	}
	sortBookings(out)
	return out
}

// FindCommitments returns every booking of workerID whose status is in
// statuses regardless of date, in the same order as FindConflicts.
func FindCommitments(existing []Booking, workerID string, statuses []Status) []Booking {
	var out []Booking
	for _, b := range existing {
		if b.WorkerID == workerID && hasStatus(statuses, b.Status) {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out
}

// BusyDates returns the distinct dates on which workerID holds an active
// commitment, oldest first.
func BusyDates(existing []Booking, workerID string) []civil.Date {
	commitments := FindCommitments(existing, workerID, ActiveStatuses)
	dates := make([]civil.Date, 0, len(commitments))
	for _, b := range commitments {
		if n := len(dates); n > 0 && dates[n-1] == b.Date {
			continue
		}
		dates = append(dates, b.Date)
	}
	return dates
}

func hasStatus(statuses []Status, s Status) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func sortBookings(bookings []Booking) {
	sort.SliceStable(bookings, func(i, j int) bool {
		a, b := bookings[i], bookings[j]
		if a.Date != b.Date {
			return a.Date.Before(b.Date)
		}
		if a.Time != b.Time {
			return a.Time.Before(b.Time)
		}
		return a.ID < b.ID
	})
}
