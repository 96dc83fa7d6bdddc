package dao

import (
	"go.uber.org/zap"
	"gorm.io/gorm"
)

/*
DAO GORM 数据访问对象
功能：所有 service 通过同一个 DAO 访问用户和条目表
*/
type DAO struct {
	DB     *gorm.DB
	logger *zap.Logger
}

func New(db *gorm.DB) *DAO {
	return &DAO{
		DB:     db,
		logger: zap.L().Named("dao"),
	}
}

/*
Transaction 在事务中执行多个数据库操作
fn 内通过 txDAO 执行的操作共享同一事务，返回错误时整体回滚
*/
func (d *DAO) Transaction(fn func(txDAO *DAO) error) error {
	return d.DB.Transaction(func(tx *gorm.DB) error {
		return fn(&DAO{DB: tx, logger: d.logger})
	})
}

/*
SanitizePagination 校正分页参数
page 最小为 1；pageSize 范围 [1, maxPageSize]，非法值回退到 20
*/
func SanitizePagination(page, pageSize, maxPageSize int) (int, int) {
	if maxPageSize <= 0 {
		maxPageSize = 100
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	} else if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}
