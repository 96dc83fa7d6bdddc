package models

import (
	"time"
)

/*
UserRole 用户角色
三级角色严格有序：user < editor < owner，高级角色包含低级角色的全部权限
*/
type UserRole string

const (
	RoleUser   UserRole = "user"
	RoleEditor UserRole = "editor"
	RoleOwner  UserRole = "owner"
)

/* RoleHierarchy 角色从低到高排列，下标即等级 */
var RoleHierarchy = []UserRole{RoleUser, RoleEditor, RoleOwner}

/*
RoleRank 返回角色等级
未知角色返回 -1
*/
func RoleRank(role string) int {
	for i, r := range RoleHierarchy {
		if string(r) == role {
			return i
		}
	}
	return -1
}

/* IsValidRole 是否为已知角色 */
func IsValidRole(role string) bool {
	return RoleRank(role) >= 0
}

/*
User 用户模型
*/
type User struct {
	BaseModel
	Username  string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	Email     string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"email"`
	Password  string    `gorm:"type:varchar(256);not null" json:"-"`
	Role      UserRole  `gorm:"type:varchar(16);default:'user';not null" json:"role"`
	Enabled   bool      `gorm:"default:true;not null" json:"enabled"`
	LastLogin time.Time `json:"last_login"`
}

func (User) TableName() string {
	return "users"
}
