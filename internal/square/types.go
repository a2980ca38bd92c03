package square

import (
	"strings"
	"time"
)

// Booking statuses that mean the appointment will not take place.
const (
	StatusAccepted            = "ACCEPTED"
	StatusPending             = "PENDING"
	StatusCancelledByCustomer = "CANCELLED_BY_CUSTOMER"
	StatusCancelledBySeller   = "CANCELLED_BY_SELLER"
	StatusDeclined            = "DECLINED"
	StatusNoShow              = "NO_SHOW"
)

// Booking is the subset of a booking the sync engine reads.
type Booking struct {
	ID                  string               `json:"id"`
	Version             int64                `json:"version"`
	Status              string               `json:"status"`
	StartAt             string               `json:"start_at"`
	LocationID          string               `json:"location_id"`
	CustomerID          string               `json:"customer_id"`
	CustomerNote        string               `json:"customer_note,omitempty"`
	AppointmentSegments []AppointmentSegment `json:"appointment_segments"`
}

// AppointmentSegment is one service slot within a booking.
type AppointmentSegment struct {
	DurationMinutes    int    `json:"duration_minutes"`
	ServiceVariationID string `json:"service_variation_id"`
	TeamMemberID       string `json:"team_member_id,omitempty"`
}

// Start parses StartAt.
func (b Booking) Start() (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(b.StartAt))
}

// DurationMinutes sums the segment durations.
func (b Booking) DurationMinutes() int {
	total := 0
	for _, seg := range b.AppointmentSegments {
		if seg.DurationMinutes > 0 {
			total += seg.DurationMinutes
		}
	}
	return total
}

// ServiceVariationID returns the first segment's service variation.
func (b Booking) ServiceVariationID() string {
	for _, seg := range b.AppointmentSegments {
		if seg.ServiceVariationID != "" {
			return seg.ServiceVariationID
		}
	}
	return ""
}

// Cancelled reports whether the status is terminal.
func (b Booking) Cancelled() bool {
	return IsCancelledStatus(b.Status)
}

// IsCancelledStatus reports whether status means the booking will not happen.
func IsCancelledStatus(status string) bool {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case StatusCancelledByCustomer, StatusCancelledBySeller, StatusDeclined, StatusNoShow:
		return true
	default:
		return false
	}
}

// Customer is a customer profile.
type Customer struct {
	ID           string   `json:"id"`
	GivenName    string   `json:"given_name"`
	FamilyName   string   `json:"family_name"`
	EmailAddress string   `json:"email_address"`
	PhoneNumber  string   `json:"phone_number"`
	Address      *Address `json:"address,omitempty"`
}

// FullName joins the given and family names.
func (c Customer) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(c.GivenName) + " " + strings.TrimSpace(c.FamilyName))
}

// Address is a postal address.
type Address struct {
	AddressLine1                 string `json:"address_line_1"`
	AddressLine2                 string `json:"address_line_2,omitempty"`
	Locality                     string `json:"locality"`
	AdministrativeDistrictLevel1 string `json:"administrative_district_level_1"`
	PostalCode                   string `json:"postal_code"`
	Country                      string `json:"country"`
}

// Location is a seller location.
type Location struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CatalogObject is a catalog entry; bookings reference item variations.
type CatalogObject struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	ItemVariationData *struct {
		Name   string `json:"name"`
		ItemID string `json:"item_id"`
	} `json:"item_variation_data,omitempty"`
	ItemData *struct {
		Name string `json:"name"`
	} `json:"item_data,omitempty"`
}

// Name returns the display name of the object.
func (o CatalogObject) Name() string {
	if o.ItemVariationData != nil && o.ItemVariationData.Name != "" {
		return o.ItemVariationData.Name
	}
	if o.ItemData != nil {
		return o.ItemData.Name
	}
	return ""
}

type apiError struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Detail   string `json:"detail"`
}
