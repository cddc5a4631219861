package model

import "time"

// UserRole 用户角色。
type UserRole string

const (
	RoleHomeowner  UserRole = "HOMEOWNER"
	RolePlumber    UserRole = "PLUMBER"
	RoleDispatcher UserRole = "DISPATCHER"
)

// ValidRole 判断角色是否合法。
func ValidRole(r UserRole) bool {
	switch r {
	case RoleHomeowner, RolePlumber, RoleDispatcher:
		return true
	}
	return false
}

// User 表示平台用户
// - Password: bcrypt 哈希，永不出现在 JSON 响应中
// - Role: 业主 / 水管工 / 调度员
type User struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex" json:"email"`
	Password  string    `json:"-"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Phone     string    `json:"phone,omitempty"`
	Role      UserRole  `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
