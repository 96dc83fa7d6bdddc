package dao

import (
	"errors"
	"time"

	"ugcleaks/server/internal/db/models"

	"gorm.io/gorm"
)

/* GetUser 根据 ID 获取用户，不存在返回 nil, nil */
func (d *DAO) GetUser(id string) (*models.User, error) {
	var user models.User
	if err := d.DB.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

/* GetUserByEmail 邮箱统一小写存储 */
func (d *DAO) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := d.DB.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (d *DAO) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	if err := d.DB.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (d *DAO) CreateUser(user *models.User) error {
	return d.DB.Create(user).Error
}

/* UpdateUserRole 只更新角色字段 */
func (d *DAO) UpdateUserRole(id string, role models.UserRole) error {
	return d.DB.Model(&models.User{}).Where("id = ?", id).Update("role", role).Error
}

func (d *DAO) UpdateUserLastLogin(id string) error {
	return d.DB.Model(&models.User{}).Where("id = ?", id).Update("last_login", time.Now()).Error
}

/*
ListUsers 分页列出用户，按注册时间倒序
*/
func (d *DAO) ListUsers(page, pageSize int) ([]models.User, int64, error) {
	page, pageSize = SanitizePagination(page, pageSize, 100)

	var total int64
	if err := d.DB.Model(&models.User{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []models.User
	if err := d.DB.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

/* DeleteUser 软删除 */
func (d *DAO) DeleteUser(id string) error {
	return d.DB.Delete(&models.User{}, "id = ?", id).Error
}

func (d *DAO) GetUserCount() (int64, error) {
	var count int64
	err := d.DB.Model(&models.User{}).Count(&count).Error
	return count, err
}

/* CountUsersByRole 删除或降级前用于确认至少保留一个 owner */
func (d *DAO) CountUsersByRole(role models.UserRole) (int64, error) {
	var count int64
	err := d.DB.Model(&models.User{}).Where("role = ?", role).Count(&count).Error
	return count, err
}
