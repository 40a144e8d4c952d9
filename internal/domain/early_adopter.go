package domain

import "time"

// DefaultEarlyAdopterSlots is the global promotional capacity.
const DefaultEarlyAdopterSlots = 50

const (
	ClaimActive   = "active"
	ClaimCanceled = "canceled"
)

// EarlyAdopterClaim reserves one promotional slot for a user.
type EarlyAdopterClaim struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"userId"`
	Email     string    `json:"email"`
	ClaimedAt time.Time `json:"claimedAt"`
	Status    string    `json:"status"`
}

// EarlyAdopterStatus is derived from the slot counter, never stored as such.
type EarlyAdopterStatus struct {
	IsEligible     bool `json:"isEligible"`
	SlotsRemaining int  `json:"slotsRemaining"`
	UsedSlots      int  `json:"usedSlots"`
	MaxSlots       int  `json:"maxSlots"`
}

// NewEarlyAdopterStatus clamps the numbers so a misconfigured counter never reports
// negative capacity.
func NewEarlyAdopterStatus(used, maxSlots int) EarlyAdopterStatus {
	remaining := maxSlots - used
	if remaining < 0 {
		remaining = 0
	}
	return EarlyAdopterStatus{
		IsEligible:     remaining > 0,
		SlotsRemaining: remaining,
		UsedSlots:      used,
		MaxSlots:       maxSlots,
	}
}
