package dao

import (
	"errors"
	"strings"
	"time"

	"ugcleaks/server/internal/db/models"

	"gorm.io/gorm"
)

/*
ItemFilter 条目列表查询条件
*/
type ItemFilter struct {
	Status   models.ItemStatus /* 为空表示不过滤 */
	Search   string            /* 标题或创作者名模糊匹配 */
	Page     int
	PageSize int
}

func (d *DAO) GetItem(id string) (*models.Item, error) {
	var item models.Item
	if err := d.DB.First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

/*
ListItems 分页列出条目
功能：有发售时间的按时间升序排在前面，未定时间的排在最后
*/
func (d *DAO) ListItems(filter ItemFilter) ([]models.Item, int64, error) {
	page, pageSize := SanitizePagination(filter.Page, filter.PageSize, 100)

	query := d.DB.Model(&models.Item{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		pattern := "%" + strings.ToLower(s) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(creator_name) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []models.Item
	if err := query.
		Order("CASE WHEN release_at IS NULL THEN 1 ELSE 0 END").
		Order("release_at ASC").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (d *DAO) CreateItem(item *models.Item) error {
	return d.DB.Create(item).Error
}

func (d *DAO) UpdateItem(item *models.Item) error {
	return d.DB.Save(item).Error
}

func (d *DAO) DeleteItem(id string) error {
	return d.DB.Delete(&models.Item{}, "id = ?", id).Error
}

/* SetItemReleaseAt 拖拽排期，releaseAt 为 nil 表示取消排期 */
func (d *DAO) SetItemReleaseAt(id string, releaseAt *time.Time, updatedBy string) error {
	return d.DB.Model(&models.Item{}).Where("id = ?", id).Updates(map[string]interface{}{
		"release_at": releaseAt,
		"updated_by": updatedBy,
	}).Error
}

/* MarkItemSoldOut 更新售罄标记，返回是否有行被修改 */
func (d *DAO) MarkItemSoldOut(id string, soldOut bool) (bool, error) {
	result := d.DB.Model(&models.Item{}).
		Where("id = ? AND sold_out <> ?", id, soldOut).
		Update("sold_out", soldOut)
	return result.RowsAffected > 0, result.Error
}

/*
MarkReleasedBefore 将发售时间早于 cutoff 的 upcoming 条目标记为 released
返回更新的行数
*/
func (d *DAO) MarkReleasedBefore(cutoff time.Time) (int64, error) {
	result := d.DB.Model(&models.Item{}).
		Where("status = ? AND release_at IS NOT NULL AND release_at < ?", models.ItemUpcoming, cutoff).
		Update("status", models.ItemReleased)
	return result.RowsAffected, result.Error
}
