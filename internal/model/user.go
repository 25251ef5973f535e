package model

import "time"

// User represents an application user record as stored in the
// `users` table. Each field corresponds to a column in the
// database. Handlers define their own response types so that the
// password hash never leaves the service.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique, normalized (lower-case) email address.
//  PasswordHash – bcrypt hashed password.
//  IsActive     – false until the account is activated by email.
//  IsSuperuser  – administrative account; widens list queries only.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	IsActive     bool      // users.is_active
	IsSuperuser  bool      // users.is_superuser
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// UserRef is the public projection of a user embedded in project and
// task responses.
type UserRef struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
}
