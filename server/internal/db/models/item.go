package models

import (
	"time"
)

/* ReleaseMethod UGC 发售方式 */
type ReleaseMethod string

const (
	ReleaseWebDrop ReleaseMethod = "web_drop"
	ReleaseInGame  ReleaseMethod = "in_game"
	ReleaseCode    ReleaseMethod = "code"
	ReleaseUnknown ReleaseMethod = "unknown"
)

/* ItemStatus 条目生命周期 */
type ItemStatus string

const (
	ItemUpcoming ItemStatus = "upcoming"
	ItemReleased ItemStatus = "released"
	ItemArchived ItemStatus = "archived"
)

/*
Item UGC 发售条目
功能：记录一件即将发售（或已发售）的 Roblox UGC 物品及其发售安排。
AssetID 为 Roblox 目录中的数字 ID，用于库存轮询；为空表示尚未上架。
*/
type Item struct {
	BaseModel
	Title        string        `gorm:"type:varchar(128);not null" json:"title"`
	CreatorName  string        `gorm:"type:varchar(64)" json:"creator_name"`
	CreatorLink  string        `gorm:"type:varchar(512)" json:"creator_link"`
	ItemLink     string        `gorm:"type:varchar(512)" json:"item_link"`
	AssetID      string        `gorm:"type:varchar(32);index" json:"asset_id"`
	ImageURL     string        `gorm:"type:varchar(512)" json:"image_url"`
	ReleaseAt    *time.Time    `gorm:"index" json:"release_at"`
	Method       ReleaseMethod `gorm:"type:varchar(16);default:'unknown';not null" json:"method"`
	GameLink     string        `gorm:"type:varchar(512)" json:"game_link"`
	Price        int           `gorm:"default:0;not null" json:"price"`
	LimitedStock int           `gorm:"default:0;not null" json:"limited_stock"`
	SoldOut      bool          `gorm:"default:false;not null" json:"sold_out"`
	Description  string        `gorm:"type:text" json:"description"`
	Instructions string        `gorm:"type:text" json:"instructions"`
	Status       ItemStatus    `gorm:"type:varchar(16);default:'upcoming';not null;index" json:"status"`
	CreatedBy    string        `gorm:"type:varchar(36);index" json:"created_by"`
	UpdatedBy    string        `gorm:"type:varchar(36)" json:"updated_by"`
}

func (Item) TableName() string {
	return "items"
}
