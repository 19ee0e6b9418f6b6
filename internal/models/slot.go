package models

import (
	"errors"
	"strings"
)

// TimeSlot is one label of the fixed set of viewing times within a day.
// Slots are labels, never clock times, and travel separately from the date.
type TimeSlot string

var ErrUnknownSlot = errors.New("unknown time slot")

// TimeSlots is the ordered set of permissible viewing slots.
var TimeSlots = []TimeSlot{
	"9:00 AM",
	"10:00 AM",
	"11:00 AM",
	"12:00 PM",
	"1:00 PM",
	"2:00 PM",
	"3:00 PM",
	"4:00 PM",
	"5:00 PM",
}

// ParseTimeSlot returns the canonical slot for a label.
func ParseTimeSlot(raw string) (TimeSlot, error) {
	raw = strings.Join(strings.Fields(raw), " ")
	for _, s := range TimeSlots {
		if strings.EqualFold(string(s), raw) {
			return s, nil
		}
	}
	return "", ErrUnknownSlot
}

// UnmarshalText rejects labels outside the fixed set.
func (s *TimeSlot) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*s = ""
		return nil
	}
	slot, err := ParseTimeSlot(string(b))
	if err != nil {
		return err
	}
	*s = slot
	return nil
}

// Index returns the slot's position in the day, or -1.
func (s TimeSlot) Index() int {
	for i, v := range TimeSlots {
		if v == s {
			return i
		}
	}
	return -1
}
