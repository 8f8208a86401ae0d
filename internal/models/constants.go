package models

const (
	StatusBooked   = "booked"
	StatusCanceled = "canceled"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

const (
	// DateLayout is the ISO date format used for all date comparisons.
	DateLayout = "2006-01-02"

	// TimeLayout is the wall-clock format of slot boundaries.
	TimeLayout = "15:04:05"

	// BlockInputLayout is the datetime format accepted for admin block ranges.
	BlockInputLayout = "2006-01-02T15:04"
)

const (
	// SlotHours is the length of every shift slot.
	SlotHours = 4

	// DefaultSessionTTL время жизни сессии в секундах
	DefaultSessionTTL = 12 * 60 * 60

	// DefaultMaxBlockDays upper bound for an admin block range
	DefaultMaxBlockDays = 62

	// SignInRateLimit attempts per email within SignInRateWindow seconds
	SignInRateLimit  = 5
	SignInRateWindow = 60

	// BookingsCacheTTL время жизни кэша выборок за месяц
	BookingsCacheTTL = 30
)
