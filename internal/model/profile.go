package model

import (
	"time"
)

// Profile is the KYC record attached to an identity
type Profile struct {
	IdentityID  string     `json:"identityId"`
	FullName    string     `json:"fullName"`
	NationalID  string     `json:"nationalId"`
	DateOfBirth *time.Time `json:"dateOfBirth,omitempty"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone"`
	Address     string     `json:"address"`
	City        string     `json:"city"`
	PostalCode  string     `json:"postalCode"`
	Occupation  string     `json:"occupation"`
	Employer    string     `json:"employer"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// EditableField names a profile attribute that may be changed through a
// modification request. Identity-defining attributes (full name, national
// id, date of birth) have no EditableField and can never be targeted.
type EditableField string

const (
	FieldEmail      EditableField = "email"
	FieldPhone      EditableField = "phone"
	FieldAddress    EditableField = "address"
	FieldCity       EditableField = "city"
	FieldPostalCode EditableField = "postal_code"
	FieldOccupation EditableField = "occupation"
	FieldEmployer   EditableField = "employer"
)

type fieldBinding struct {
	column string
	get    func(*Profile) string
}

var fieldBindings = map[EditableField]fieldBinding{
	FieldEmail: {
		column: "email",
		get:    func(p *Profile) string { return p.Email },
	},
	FieldPhone: {
		column: "phone",
		get:    func(p *Profile) string { return p.Phone },
	},
	FieldAddress: {
		column: "address",
		get:    func(p *Profile) string { return p.Address },
	},
	FieldCity: {
		column: "city",
		get:    func(p *Profile) string { return p.City },
	},
	FieldPostalCode: {
		column: "postal_code",
		get:    func(p *Profile) string { return p.PostalCode },
	},
	FieldOccupation: {
		column: "occupation",
		get:    func(p *Profile) string { return p.Occupation },
	},
	FieldEmployer: {
		column: "employer",
		get:    func(p *Profile) string { return p.Employer },
	},
}

// ParseEditableField maps a wire name onto an EditableField
func ParseEditableField(name string) (EditableField, bool) {
	f := EditableField(name)
	_, ok := fieldBindings[f]
	return f, ok
}

// Column returns the profiles column written when this field is approved
func (f EditableField) Column() string {
	return fieldBindings[f].column
}

// Get reads the field's current value from p
func (f EditableField) Get(p *Profile) string {
	b, ok := fieldBindings[f]
	if !ok {
		return ""
	}
	return b.get(p)
}
