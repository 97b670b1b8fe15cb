package api

import "time"

// OrderResponse lists the registrations created for one storefront order
type OrderResponse struct {
	OrderID       int64              `json:"order_id"`
	Host          string             `json:"host"`
	Registrations []RegistrationView `json:"registrations"`
}

// RegistrationView is the public view of a stored registration
type RegistrationView struct {
	Key           string     `json:"registry_key"`
	TransactionID string     `json:"transaction_id"`
	Product       string     `json:"product"`
	Status        string     `json:"status"`   // registry status
	Standing      string     `json:"standing"` // "active", "expired", "inactive", "trashed"
	Effective     *time.Time `json:"effective,omitempty"`
	Expires       *time.Time `json:"expires,omitempty"`
	NextPay       *time.Time `json:"next_pay,omitempty"`
	Email         string     `json:"email,omitempty"`
	Variations    []string   `json:"variations,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
