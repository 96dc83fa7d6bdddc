package service

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"ugcleaks/server/internal/db/dao"
	"ugcleaks/server/internal/db/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

/* ==================== 输入校验 ==================== */

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,32}$`)
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

/*
ValidatePasswordStrength 密码规则
8-72 位（bcrypt 上限 72 字节），至少包含一个字母和一个数字
*/
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return NewValidationError("password must be at least 8 characters")
	}
	if len(password) > 72 {
		return NewValidationError("password must be at most 72 characters")
	}

	var hasLetter, hasDigit bool
	for _, c := range password {
		switch {
		case unicode.IsLetter(c):
			hasLetter = true
		case unicode.IsDigit(c):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return NewValidationError("password must contain letters and digits")
	}
	return nil
}

func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return NewValidationError("username must be 3-32 characters of letters, digits, '_' or '-'")
	}
	return nil
}

func ValidateEmail(email string) error {
	if len(email) > 128 || !emailRegex.MatchString(email) {
		return NewValidationError("invalid email address")
	}
	return nil
}

/* ==================== 用户服务 ==================== */

const defaultBcryptCost = 12

/*
UserService 用户注册、登录校验和角色管理
*/
type UserService struct {
	dao        *dao.DAO
	bcryptCost int
	logger     *zap.Logger

	dummyOnce sync.Once
	dummyHash []byte
}

func NewUserService(d *dao.DAO) *UserService {
	return &UserService{
		dao:        d,
		bcryptCost: defaultBcryptCost,
		logger:     zap.L().Named("user-service"),
	}
}

/*
SignupRequest 注册请求
*/
type SignupRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

/*
Register 注册新用户
功能：校验输入 → 查重 → 首个用户设为 owner → 写库，查重和写入在同一事务内
*/
func (s *UserService) Register(req *SignupRequest) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	username := strings.TrimSpace(req.Username)

	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePasswordStrength(req.Password); err != nil {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("密码加密失败: %w", err)
	}

	user := &models.User{
		Username: username,
		Email:    email,
		Password: string(hashed),
		Role:     models.RoleUser,
		Enabled:  true,
	}

	err = s.dao.Transaction(func(tx *dao.DAO) error {
		if existing, err := tx.GetUserByEmail(email); err != nil {
			return err
		} else if existing != nil {
			return fmt.Errorf("email %w", ErrConflict)
		}
		if existing, err := tx.GetUserByUsername(username); err != nil {
			return err
		} else if existing != nil {
			return fmt.Errorf("username %w", ErrConflict)
		}

		count, err := tx.GetUserCount()
		if err != nil {
			return err
		}
		if count == 0 {
			user.Role = models.RoleOwner
		}
		return tx.CreateUser(user)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("新用户注册",
		zap.String("user_id", user.ID),
		zap.String("username", user.Username),
		zap.String("role", string(user.Role)))
	return user, nil
}

/*
Authenticate 校验邮箱和密码
邮箱不存在和密码错误返回同一个错误
*/
func (s *UserService) Authenticate(email, password string) (*models.User, error) {
	user, err := s.dao.GetUserByEmail(strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if user == nil {
		/* 仍执行一次比较，避免通过响应时间区分邮箱是否存在 */
		_ = bcrypt.CompareHashAndPassword(s.dummyPasswordHash(), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.Enabled {
		return nil, ErrAccountDisabled
	}

	if err := s.dao.UpdateUserLastLogin(user.ID); err != nil {
		s.logger.Warn("更新最后登录时间失败", zap.String("user_id", user.ID), zap.Error(err))
	}
	return user, nil
}

func (s *UserService) dummyPasswordHash() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("ugcleaks-dummy-password"), s.bcryptCost)
	})
	return s.dummyHash
}

func (s *UserService) GetUser(id string) (*models.User, error) {
	user, err := s.dao.GetUser(id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

func (s *UserService) ListUsers(page, pageSize int) ([]models.User, int64, error) {
	return s.dao.ListUsers(page, pageSize)
}

/*
UpdateRole 修改用户角色
未知角色返回 ValidationError；不允许把最后一个 owner 降级
*/
func (s *UserService) UpdateRole(id, role string) (*models.User, error) {
	if !models.IsValidRole(role) {
		return nil, NewValidationError(fmt.Sprintf("invalid role %q", role))
	}

	var updated *models.User
	err := s.dao.Transaction(func(tx *dao.DAO) error {
		user, err := tx.GetUser(id)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrNotFound
		}
		if user.Role == models.RoleOwner && role != string(models.RoleOwner) {
			if err := ensureAnotherOwner(tx); err != nil {
				return err
			}
		}
		if err := tx.UpdateUserRole(id, models.UserRole(role)); err != nil {
			return err
		}
		user.Role = models.UserRole(role)
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("用户角色已变更", zap.String("user_id", id), zap.String("role", role))
	return updated, nil
}

/* DeleteUser 不允许删除最后一个 owner */
func (s *UserService) DeleteUser(id string) error {
	return s.dao.Transaction(func(tx *dao.DAO) error {
		user, err := tx.GetUser(id)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrNotFound
		}
		if user.Role == models.RoleOwner {
			if err := ensureAnotherOwner(tx); err != nil {
				return err
			}
		}
		return tx.DeleteUser(id)
	})
}

func ensureAnotherOwner(tx *dao.DAO) error {
	owners, err := tx.CountUsersByRole(models.RoleOwner)
	if err != nil {
		return err
	}
	if owners <= 1 {
		return ErrLastOwner
	}
	return nil
}

/* IsConflict 注册查重冲突 */
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
