package models

import "time"

// Booking is a single reserved slot. Date and times are kept as zero-padded ISO
// strings so ordering never depends on locale or timezone parsing.
type Booking struct {
	ID         string     `json:"id" gorm:"primaryKey"`
	UserID     string     `json:"user_id" gorm:"not null;index"`
	Date       string     `json:"date" gorm:"not null;index"`       // YYYY-MM-DD
	StartTime  string     `json:"start_time" gorm:"not null"`       // HH:MM:SS
	EndTime    string     `json:"end_time" gorm:"not null"`         // HH:MM:SS
	Status     string     `json:"status" gorm:"not null;index"`     // booked, canceled
	CanceledAt *time.Time `json:"canceled_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (Booking) TableName() string { return "bookings" }

// IsBooked reports whether the row still holds its slot.
func (b *Booking) IsBooked() bool {
	return b.Status == StatusBooked
}

// SlotRequest describes a slot to be inserted as a new booking.
type SlotRequest struct {
	UserID    string `json:"user_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// ClosedDay marks a date on which nothing can be booked.
type ClosedDay struct {
	ID     string `json:"id" gorm:"primaryKey"`
	Date   string `json:"date" gorm:"not null;uniqueIndex"`
	Reason string `json:"reason,omitempty"`
}

func (ClosedDay) TableName() string { return "closed_days" }
