// Package format holds the display helpers shared by the portal views.
package format

import (
	"strconv"
	"strings"
	"time"
)

var months = [...]string{"", "Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// SlotDate turns a backend slot date ("20_1_2025", 1-based month) into
// "20 Jan 2025". Input that does not have that shape is returned unchanged.
func SlotDate(slotDate string) string {
	parts := strings.Split(slotDate, "_")
	if len(parts) != 3 {
		return slotDate
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 1 || m > 12 {
		return slotDate
	}
	return parts[0] + " " + months[m] + " " + parts[2]
}

// Age is the calendar-year difference between now and a YYYY-MM-DD birth date.
func Age(dob string, now time.Time) (int, bool) {
	birth, err := time.Parse("2006-01-02", strings.TrimSpace(dob))
	if err != nil {
		return 0, false
	}
	age := now.Year() - birth.Year()
	if age < 0 {
		return 0, false
	}
	return age, true
}

// Fee prefixes the amount with the currency symbol, dropping a zero fraction.
func Fee(currency string, amount float64) string {
	return currency + strconv.FormatFloat(amount, 'f', -1, 64)
}

// Formatter bundles the helpers with the clinic's display settings.
type Formatter struct {
	Currency string
	Now      func() time.Time
}

func NewFormatter(currency string) *Formatter {
	return &Formatter{Currency: currency, Now: time.Now}
}

func (f *Formatter) SlotDate(slotDate string) string {
	return SlotDate(slotDate)
}

func (f *Formatter) Age(dob string) (int, bool) {
	return Age(dob, f.Now())
}

func (f *Formatter) Fee(amount float64) string {
	return Fee(f.Currency, amount)
}
