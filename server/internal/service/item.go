package service

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"ugcleaks/server/internal/db/dao"
	"ugcleaks/server/internal/db/models"

	"go.uber.org/zap"
)

/* catalogURLRegex Roblox 目录/套装链接中的数字 ID */
var catalogURLRegex = regexp.MustCompile(`roblox\.com/(?:catalog|bundles)/(\d+)`)

/*
ExtractAssetID 从目录链接中解析物品 ID
*/
func ExtractAssetID(link string) (string, bool) {
	m := catalogURLRegex.FindStringSubmatch(link)
	if m == nil {
		return "", false
	}
	return m[1], true
}

/*
StockProvider 条目列表合并库存时使用，StockCache 实现
*/
type StockProvider interface {
	GetStock(ctx context.Context, assetIDs []string) (map[string]StockInfo, error)
	MaxIDs() int
}

/*
ItemRequest 创建/更新条目的请求体
更新为整体覆盖，未传的字段恢复为零值
*/
type ItemRequest struct {
	Title        string     `json:"title"`
	CreatorName  string     `json:"creator_name"`
	CreatorLink  string     `json:"creator_link"`
	ItemLink     string     `json:"item_link"`
	AssetID      string     `json:"asset_id"`
	ImageURL     string     `json:"image_url"`
	ReleaseAt    *time.Time `json:"release_at"`
	Method       string     `json:"method"`
	GameLink     string     `json:"game_link"`
	Price        int        `json:"price"`
	LimitedStock int        `json:"limited_stock"`
	Description  string     `json:"description"`
	Instructions string     `json:"instructions"`
	Status       string     `json:"status"`
}

/*
ItemWithStock 条目及其库存（仅在请求 with_stock 且有 AssetID 时存在）
*/
type ItemWithStock struct {
	models.Item
	Stock *StockInfo `json:"stock,omitempty"`
}

/*
ItemService 发售条目管理
功能：CRUD、拖拽排期、售罄标记，以及列表查询时合并实时库存
*/
type ItemService struct {
	dao    *dao.DAO
	stock  StockProvider
	logger *zap.Logger
}

func NewItemService(d *dao.DAO, stock StockProvider) *ItemService {
	return &ItemService{
		dao:    d,
		stock:  stock,
		logger: zap.L().Named("item-service"),
	}
}

/*
List 分页查询条目
withStock 为 true 时按 AssetID 查询库存并合并
*/
func (s *ItemService) List(ctx context.Context, filter dao.ItemFilter, withStock bool) ([]ItemWithStock, int64, error) {
	if filter.Status != "" && !isValidItemStatus(string(filter.Status)) {
		return nil, 0, NewValidationError(fmt.Sprintf("invalid status %q", filter.Status))
	}

	items, total, err := s.dao.ListItems(filter)
	if err != nil {
		return nil, 0, err
	}

	out := make([]ItemWithStock, len(items))
	for i := range items {
		out[i] = ItemWithStock{Item: items[i]}
	}
	if withStock {
		s.mergeStock(ctx, out)
	}
	return out, total, nil
}

func (s *ItemService) Get(ctx context.Context, id string, withStock bool) (*ItemWithStock, error) {
	item, err := s.dao.GetItem(id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrNotFound
	}

	out := []ItemWithStock{{Item: *item}}
	if withStock {
		s.mergeStock(ctx, out)
	}
	return &out[0], nil
}

/*
mergeStock 为有 AssetID 的条目附加库存
读数为 ok 且剩余为 0 时自动标记售罄；库存查询失败只记录日志，不影响列表返回
*/
func (s *ItemService) mergeStock(ctx context.Context, items []ItemWithStock) {
	if s.stock == nil {
		return
	}

	var ids []string
	seen := make(map[string]struct{})
	for _, it := range items {
		if it.AssetID == "" {
			continue
		}
		if _, ok := seen[it.AssetID]; ok {
			continue
		}
		seen[it.AssetID] = struct{}{}
		ids = append(ids, it.AssetID)
	}
	if len(ids) == 0 {
		return
	}

	chunk := s.stock.MaxIDs()
	if chunk <= 0 {
		chunk = len(ids)
	}
	stock := make(map[string]StockInfo, len(ids))
	for start := 0; start < len(ids); start += chunk {
		end := min(start+chunk, len(ids))
		part, err := s.stock.GetStock(ctx, ids[start:end])
		if err != nil {
			s.logger.Warn("合并库存失败", zap.Error(err))
			return
		}
		for id, info := range part {
			stock[id] = info
		}
	}

	for i := range items {
		info, ok := stock[items[i].AssetID]
		if !ok {
			continue
		}
		items[i].Stock = &info

		if info.Status == StockOK && info.CurrentStock == 0 && !items[i].SoldOut {
			changed, err := s.dao.MarkItemSoldOut(items[i].ID, true)
			if err != nil {
				s.logger.Warn("自动标记售罄失败", zap.String("item_id", items[i].ID), zap.Error(err))
				continue
			}
			items[i].SoldOut = true
			if changed {
				s.logger.Info("库存为 0，自动标记售罄",
					zap.String("item_id", items[i].ID),
					zap.String("asset_id", items[i].AssetID))
			}
		}
	}
}

func (s *ItemService) Create(req *ItemRequest, userID string) (*models.Item, error) {
	item := &models.Item{CreatedBy: userID}
	if err := applyItemRequest(item, req, userID); err != nil {
		return nil, err
	}
	if err := s.dao.CreateItem(item); err != nil {
		return nil, fmt.Errorf("创建条目失败: %w", err)
	}
	s.logger.Info("条目已创建", zap.String("item_id", item.ID), zap.String("user_id", userID))
	return item, nil
}

func (s *ItemService) Update(id string, req *ItemRequest, userID string) (*models.Item, error) {
	item, err := s.dao.GetItem(id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrNotFound
	}
	if err := applyItemRequest(item, req, userID); err != nil {
		return nil, err
	}
	if err := s.dao.UpdateItem(item); err != nil {
		return nil, fmt.Errorf("更新条目失败: %w", err)
	}
	return item, nil
}

func (s *ItemService) Delete(id string) error {
	item, err := s.dao.GetItem(id)
	if err != nil {
		return err
	}
	if item == nil {
		return ErrNotFound
	}
	return s.dao.DeleteItem(id)
}

/* Schedule 设置或清除发售时间 */
func (s *ItemService) Schedule(id string, releaseAt *time.Time, userID string) (*models.Item, error) {
	item, err := s.dao.GetItem(id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrNotFound
	}
	if releaseAt != nil {
		t := releaseAt.UTC()
		releaseAt = &t
	}
	if err := s.dao.SetItemReleaseAt(id, releaseAt, userID); err != nil {
		return nil, err
	}
	item.ReleaseAt = releaseAt
	item.UpdatedBy = userID
	return item, nil
}

/* SetSoldOut 手动修改售罄标记 */
func (s *ItemService) SetSoldOut(id string, soldOut bool) (*models.Item, error) {
	item, err := s.dao.GetItem(id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrNotFound
	}
	if _, err := s.dao.MarkItemSoldOut(id, soldOut); err != nil {
		return nil, err
	}
	item.SoldOut = soldOut
	return item, nil
}

/*
applyItemRequest 校验请求并写入模型
AssetID 为空时尝试从 ItemLink 解析
*/
func applyItemRequest(item *models.Item, req *ItemRequest, userID string) error {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return NewValidationError("title is required")
	}
	if len(title) > 128 {
		return NewValidationError("title must be at most 128 characters")
	}
	if req.Price < 0 || req.LimitedStock < 0 {
		return NewValidationError("price and limited_stock must not be negative")
	}

	for name, link := range map[string]string{
		"creator_link": req.CreatorLink,
		"item_link":    req.ItemLink,
		"image_url":    req.ImageURL,
		"game_link":    req.GameLink,
	} {
		if err := validateLink(name, link); err != nil {
			return err
		}
	}

	method := models.ReleaseUnknown
	if req.Method != "" {
		if !isValidReleaseMethod(req.Method) {
			return NewValidationError(fmt.Sprintf("invalid method %q", req.Method))
		}
		method = models.ReleaseMethod(req.Method)
	}

	status := models.ItemUpcoming
	if req.Status != "" {
		if !isValidItemStatus(req.Status) {
			return NewValidationError(fmt.Sprintf("invalid status %q", req.Status))
		}
		status = models.ItemStatus(req.Status)
	}

	assetID := strings.TrimSpace(req.AssetID)
	if assetID == "" {
		assetID, _ = ExtractAssetID(req.ItemLink)
	} else if !isDigits(assetID) {
		return NewValidationError("asset_id must be numeric")
	}

	var releaseAt *time.Time
	if req.ReleaseAt != nil {
		t := req.ReleaseAt.UTC()
		releaseAt = &t
	}

	item.Title = title
	item.CreatorName = strings.TrimSpace(req.CreatorName)
	item.CreatorLink = req.CreatorLink
	item.ItemLink = req.ItemLink
	item.AssetID = assetID
	item.ImageURL = req.ImageURL
	item.ReleaseAt = releaseAt
	item.Method = method
	item.GameLink = req.GameLink
	item.Price = req.Price
	item.LimitedStock = req.LimitedStock
	item.Description = req.Description
	item.Instructions = req.Instructions
	item.Status = status
	item.UpdatedBy = userID
	return nil
}

func validateLink(field, link string) error {
	if link == "" {
		return nil
	}
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return NewValidationError(field + " must be an http(s) URL")
	}
	return nil
}

func isValidReleaseMethod(m string) bool {
	switch models.ReleaseMethod(m) {
	case models.ReleaseWebDrop, models.ReleaseInGame, models.ReleaseCode, models.ReleaseUnknown:
		return true
	}
	return false
}

func isValidItemStatus(s string) bool {
	switch models.ItemStatus(s) {
	case models.ItemUpcoming, models.ItemReleased, models.ItemArchived:
		return true
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
