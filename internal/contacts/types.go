package contacts

import (
	"strings"

	"github.com/himplant/crmsync/internal/square"
	"github.com/himplant/crmsync/internal/zoho"
)

// Kind is the CRM module a person lives in.
type Kind string

// Person kinds.
const (
	KindLead    Kind = zoho.ModuleLeads
	KindContact Kind = zoho.ModuleContacts
)

// Identity describes the customer behind a booking. It is built per event
// and never stored.
type Identity struct {
	Email     string
	Phone     string
	FirstName string
	LastName  string
	Address   *Address
}

// Address is a postal address in CRM-neutral form.
type Address struct {
	Street  string
	City    string
	State   string
	Zip     string
	Country string
}

// Empty reports whether no address part is set.
func (a *Address) Empty() bool {
	return a == nil || (a.Street == "" && a.City == "" && a.State == "" && a.Zip == "" && a.Country == "")
}

// PersonRef points at the resolved CRM record.
type PersonRef struct {
	Kind       Kind   `json:"kind"`
	ID         string `json:"id"`
	Created    bool   `json:"created"`
	Backfilled bool   `json:"backfilled,omitempty"`
}

// FullName joins first and last name.
func (i Identity) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(i.FirstName) + " " + strings.TrimSpace(i.LastName))
}

// IdentityFromCustomer builds a normalized identity from a customer profile.
func IdentityFromCustomer(c square.Customer) Identity {
	id := Identity{
		Email:     NormalizeEmail(c.EmailAddress),
		Phone:     NormalizePhone(c.PhoneNumber),
		FirstName: strings.TrimSpace(c.GivenName),
		LastName:  strings.TrimSpace(c.FamilyName),
	}
	if c.Address != nil {
		addr := &Address{
			Street:  strings.TrimSpace(c.Address.AddressLine1),
			City:    strings.TrimSpace(c.Address.Locality),
			State:   strings.TrimSpace(c.Address.AdministrativeDistrictLevel1),
			Zip:     strings.TrimSpace(c.Address.PostalCode),
			Country: strings.TrimSpace(c.Address.Country),
		}
		if !addr.Empty() {
			id.Address = addr
		}
	}
	return id
}

// WithPlaceholderEmail fills a synthetic "<bookingID>@<domain>" address when
// the identity has neither email nor phone and domain is set.
func (i Identity) WithPlaceholderEmail(bookingID, domain string) Identity {
	domain = strings.TrimSpace(domain)
	if i.Email != "" || i.Phone != "" || domain == "" || strings.TrimSpace(bookingID) == "" {
		return i
	}
	i.Email = NormalizeEmail(bookingID + "@" + domain)
	return i
}

type addressFields struct {
	Street, City, State, Zip, Country string
}

var addressFieldsByKind = map[Kind]addressFields{
	KindContact: {"Mailing_Street", "Mailing_City", "Mailing_State", "Mailing_Zip", "Mailing_Country"},
	KindLead:    {"Street", "City", "State", "Zip_Code", "Country"},
}

func addressRecord(kind Kind, a *Address) zoho.Record {
	f := addressFieldsByKind[kind]
	rec := zoho.Record{}
	set := func(field, value string) {
		if value != "" {
			rec[field] = value
		}
	}
	set(f.Street, a.Street)
	set(f.City, a.City)
	set(f.State, a.State)
	set(f.Zip, a.Zip)
	set(f.Country, a.Country)
	return rec
}
