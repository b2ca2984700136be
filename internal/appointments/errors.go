package appointments

import "errors"

var (
	// ErrAppointmentNotFound is returned when an appointment lookup misses.
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotConflict is returned when the requested slot overlaps an
	// existing non-cancelled appointment for the same doctor.
	ErrSlotConflict = errors.New("slot already booked")

	// ErrInvalidSlot is returned when the requested time range is malformed
	// or lies in the past.
	ErrInvalidSlot = errors.New("invalid slot")

	// ErrInvalidTransition is returned when the appointment is not in a
	// state the requested operation accepts.
	ErrInvalidTransition = errors.New("invalid status transition")
)
