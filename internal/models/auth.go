package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the roles carried by identity provider tokens.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleOfficer    UserRole = "OFFICER"
	RoleReviewer   UserRole = "REVIEWER"
	RoleSystem     UserRole = "SYSTEM"
)

// Administrative reports whether the role may perform overrides and destructive actions.
func (r UserRole) Administrative() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// JWTClaims represents the JWT payload of access tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
