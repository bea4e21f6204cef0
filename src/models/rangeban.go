package models

import (
	"reflect"
	"time"
)

var RangebanModelType = reflect.TypeOf(Rangeban{})

type RangebanType string

const (
	RangebanTypeCountry RangebanType = "country"
	RangebanTypeASN     RangebanType = "asn"
	RangebanTypeIPRange RangebanType = "ip_range"
)

var RangebanTypes = []RangebanType{RangebanTypeCountry, RangebanTypeASN, RangebanTypeIPRange}

func (t RangebanType) Valid() bool {
	for _, valid := range RangebanTypes {
		if t == valid {
			return true
		}
	}
	return false
}

// A restriction on a class of IPs: a country, an autonomous system, or a CIDR
// range.
type Rangeban struct {
	ID int `db:"id" json:"id"`

	BanType     RangebanType `db:"ban_type" json:"ban_type"`
	BanValue    string       `db:"ban_value" json:"ban_value"`
	BoardID     *string      `db:"board_id" json:"board_id"`
	Reason      string       `db:"reason" json:"reason"`
	ExpiresAt   *time.Time   `db:"expires_at" json:"expires_at"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	AdminUserID *int         `db:"admin_user_id" json:"admin_user_id"`
	IsActive    bool         `db:"is_active" json:"is_active"`
}

func (r *Rangeban) IsGlobal() bool {
	return r.BoardID == nil
}

func (r *Rangeban) IsPermanent() bool {
	return r.ExpiresAt == nil
}

func (r *Rangeban) BlocksAt(t time.Time) bool {
	return r.IsActive && (r.ExpiresAt == nil || r.ExpiresAt.After(t))
}
