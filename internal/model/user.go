package model

import (
	"time"
)

const (
	UserTypeStudent = "student"
	UserTypeTeacher = "teacher"
)

// DeletedEmailDomain is reserved for anonymized accounts.
const DeletedEmailDomain = "deleted.local"

type User struct {
	ID           int64      `db:"id"` // Internal only, never leaves the store layer
	UUID         string     `db:"uuid"`
	FirstName    string     `db:"first_name"`
	LastName     string     `db:"last_name"`
	Email        string     `db:"email"`
	PasswordHash string     `db:"password_hash"`
	DateOfBirth  *time.Time `db:"date_of_birth"`
	UserType     string     `db:"user_type"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
	DeletedAt    *time.Time `db:"deleted_at"`
}

func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}

// DeletedEmail is the placeholder address written over a user's email on soft delete.
func DeletedEmail(uuid string) string {
	return "deleted_" + uuid + "@" + DeletedEmailDomain
}

func ValidUserType(userType string) bool {
	return userType == UserTypeStudent || userType == UserTypeTeacher
}
