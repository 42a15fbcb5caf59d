// Package user is a small account store built on sqlt: plain DAOs for the
// users and user_history tables and a service that changes a password and
// records the change in one transaction.
package user

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("user: not found")
	ErrEmptyPassword = errors.New("user: empty password")
)

// User is a row of the users table.
type User struct {
	ID       int64  `db:"id" json:"id"`
	Account  string `db:"account" json:"account"`
	Password string `db:"password" json:"-"`
	Email    string `db:"email" json:"email"`
}

// ChangePassword replaces the password.
func (u *User) ChangePassword(password string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	u.Password = password
	return nil
}

// History is a snapshot of a user written on every change.
type History struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Account   string    `db:"account" json:"account"`
	Password  string    `db:"password" json:"-"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	CreatedBy string    `db:"created_by" json:"created_by"`
}

// NewHistory snapshots u as changed by createdBy at at.
func NewHistory(u *User, createdBy string, at time.Time) History {
	return History{
		UserID:    u.ID,
		Account:   u.Account,
		Password:  u.Password,
		Email:     u.Email,
		CreatedAt: at,
		CreatedBy: createdBy,
	}
}
