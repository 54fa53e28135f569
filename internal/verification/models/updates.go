package models

import "strings"

// AddressUpdate carries optional address fields; nil means "leave as is".
type AddressUpdate struct {
	Street  *string `json:"street,omitempty"`
	City    *string `json:"city,omitempty"`
	Country *string `json:"country,omitempty"`
}

func (a *AddressUpdate) IsEmpty() bool {
	return a == nil || (a.Street == nil && a.City == nil && a.Country == nil)
}

// PersonalInfoUpdate is a partial personal info edit.
type PersonalInfoUpdate struct {
	FullName    *string        `json:"full_name,omitempty"`
	DateOfBirth *string        `json:"date_of_birth,omitempty"`
	NationalID  *string        `json:"national_id,omitempty"`
	Address     *AddressUpdate `json:"address,omitempty"`
}

func (u PersonalInfoUpdate) IsEmpty() bool {
	return u.FullName == nil && u.DateOfBirth == nil && u.NationalID == nil && u.Address.IsEmpty()
}

// ApplyTo merges the set fields into info, trimming whitespace.
func (u PersonalInfoUpdate) ApplyTo(info *PersonalInfo) {
	setTrimmed(&info.FullName, u.FullName)
	setTrimmed(&info.DateOfBirth, u.DateOfBirth)
	setTrimmed(&info.NationalID, u.NationalID)
	if u.Address != nil {
		setTrimmed(&info.Address.Street, u.Address.Street)
		setTrimmed(&info.Address.City, u.Address.City)
		setTrimmed(&info.Address.Country, u.Address.Country)
	}
}

// PhoneVerificationUpdate is a partial phone edit.
type PhoneVerificationUpdate struct {
	PhoneNumber *string `json:"phone_number,omitempty"`
	Verified    *bool   `json:"verified,omitempty"`
}

func (u PhoneVerificationUpdate) IsEmpty() bool {
	return u.PhoneNumber == nil && u.Verified == nil
}

func setTrimmed(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}
