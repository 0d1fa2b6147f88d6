package domain

import "strings"

// ShippingInfo is the checkout shipping form. Every field is required after trimming.
type ShippingInfo struct {
	FullName string `json:"fullName" validate:"required"`
	Address  string `json:"address" validate:"required"`
	City     string `json:"city" validate:"required"`
	State    string `json:"state" validate:"required"`
	ZipCode  string `json:"zipCode" validate:"required"`
	Country  string `json:"country" validate:"required"`
	Phone    string `json:"phone" validate:"required"`
}

// Trimmed returns a copy with surrounding whitespace removed from every field.
func (s ShippingInfo) Trimmed() ShippingInfo {
	return ShippingInfo{
		FullName: strings.TrimSpace(s.FullName),
		Address:  strings.TrimSpace(s.Address),
		City:     strings.TrimSpace(s.City),
		State:    strings.TrimSpace(s.State),
		ZipCode:  strings.TrimSpace(s.ZipCode),
		Country:  strings.TrimSpace(s.Country),
		Phone:    strings.TrimSpace(s.Phone),
	}
}
