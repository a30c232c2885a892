// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is a registered account. Phone is the login identifier and is unique;
// Email is optional but unique when present.
type User struct {
	ID           int64
	Firstname    string
	Lastname     string
	Phone        string
	Email        *string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
}

// UserPatch carries the optional fields of a user update. Nil means
// "leave unchanged". Password is plain text and is hashed by the service.
type UserPatch struct {
	Firstname *string
	Lastname  *string
	Phone     *string
	Email     *string
	Password  *string
	IsAdmin   *bool
}
