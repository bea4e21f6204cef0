package models

import (
	"reflect"
	"time"
)

var UserType = reflect.TypeOf(User{})

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleJanitor   Role = "janitor"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleModerator || r == RoleJanitor
}

// An admin panel account. Accounts have no passwords; sessions are handed out
// from the command line.
type User struct {
	ID int `db:"id" json:"id"`

	Username  string    `db:"username" json:"username"`
	Role      Role      `db:"role" json:"role"`
	Boards    []string  `db:"boards" json:"boards"` // empty means every board
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
