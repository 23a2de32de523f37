package dto

import "github.com/noah-isme/hostelx-api/internal/models"

// CreateUserRequest registers a resident or staff account.
type CreateUserRequest struct {
	Email    string          `json:"email" validate:"required,email,max=255"`
	FullName string          `json:"full_name" validate:"required,max=120"`
	Role     models.UserRole `json:"role" validate:"required,oneof=STUDENT WARDEN ADMIN SECURITY"`
	Room     string          `json:"room" validate:"required_if=Role STUDENT,max=32"`
	IDNumber string          `json:"id_number" validate:"max=64"`
	Password string          `json:"password" validate:"required,min=8,max=72"`
	Active   *bool           `json:"active"`
}

// UpdateUserRequest changes profile fields. Omitted pointers keep their value.
type UpdateUserRequest struct {
	FullName string          `json:"full_name" validate:"required,max=120"`
	Role     models.UserRole `json:"role" validate:"required,oneof=STUDENT WARDEN ADMIN SECURITY"`
	Room     *string         `json:"room" validate:"omitempty,max=32"`
	IDNumber *string         `json:"id_number" validate:"omitempty,max=64"`
	Active   *bool           `json:"active"`
}

// ListUsersQuery filters the account directory.
type ListUsersQuery struct {
	Role     string `form:"role"`
	Active   *bool  `form:"active"`
	Room     string `form:"room"`
	Search   string `form:"search"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}
