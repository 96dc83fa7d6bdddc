package item

import (
	"time"

	"ugcleaks/server/internal/api/handler"
	"ugcleaks/server/internal/api/middleware"
	"ugcleaks/server/internal/api/response"
	"ugcleaks/server/internal/db/dao"
	"ugcleaks/server/internal/db/models"
	"ugcleaks/server/internal/service"
	"ugcleaks/server/internal/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

/*
ItemHandler 发售条目
读接口公开，写接口要求 editor
*/
type ItemHandler struct {
	app    *types.App
	logger *zap.Logger
}

func NewItemHandler(app *types.App) *ItemHandler {
	return &ItemHandler{
		app:    app,
		logger: zap.L().Named("item-handler"),
	}
}

/*
List 条目列表
路由：GET /api/v1/items?status=&search=&page=&page_size=&with_stock=true
*/
func (h *ItemHandler) List(c *gin.Context) {
	filter := dao.ItemFilter{
		Status:   models.ItemStatus(c.Query("status")),
		Search:   c.Query("search"),
		Page:     handler.QueryInt(c, "page", 1),
		PageSize: handler.QueryInt(c, "page_size", 20),
	}

	items, total, err := h.app.Items.List(c.Request.Context(), filter, c.Query("with_stock") == "true")
	if err != nil {
		handler.RespondError(c, err, "failed to list items")
		return
	}

	page, pageSize := dao.SanitizePagination(filter.Page, filter.PageSize, 100)
	response.GinSuccess(c, response.PageData{Items: items, Total: total, Page: page, PageSize: pageSize})
}

/* Get GET /api/v1/items/:id?with_stock=true */
func (h *ItemHandler) Get(c *gin.Context) {
	item, err := h.app.Items.Get(c.Request.Context(), c.Param("id"), c.Query("with_stock") == "true")
	if err != nil {
		handler.RespondError(c, err, "failed to load item")
		return
	}
	response.GinSuccess(c, item)
}

/* Create POST /api/v1/items/create */
func (h *ItemHandler) Create(c *gin.Context) {
	var req service.ItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.GinBadRequest(c, "invalid request body")
		return
	}

	item, err := h.app.Items.Create(&req, middleware.GetUserID(c))
	if err != nil {
		handler.RespondError(c, err, "failed to create item")
		return
	}
	response.GinCreated(c, item)
}

/* Update POST /api/v1/items/:id/update */
func (h *ItemHandler) Update(c *gin.Context) {
	var req service.ItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.GinBadRequest(c, "invalid request body")
		return
	}

	item, err := h.app.Items.Update(c.Param("id"), &req, middleware.GetUserID(c))
	if err != nil {
		handler.RespondError(c, err, "failed to update item")
		return
	}
	response.GinSuccessWithMessage(c, "item updated", item)
}

/* Delete POST /api/v1/items/:id/delete */
func (h *ItemHandler) Delete(c *gin.Context) {
	if err := h.app.Items.Delete(c.Param("id")); err != nil {
		handler.RespondError(c, err, "failed to delete item")
		return
	}
	h.logger.Info("条目已删除", zap.String("item_id", c.Param("id")), zap.String("operator", middleware.GetUserID(c)))
	response.GinSuccessWithMessage(c, "item deleted", nil)
}

type scheduleRequest struct {
	ReleaseAt *time.Time `json:"release_at"`
}

/*
Schedule 拖拽排期
路由：POST /api/v1/items/:id/schedule，release_at 为 null 表示取消排期
*/
func (h *ItemHandler) Schedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.GinBadRequest(c, "invalid request body")
		return
	}

	item, err := h.app.Items.Schedule(c.Param("id"), req.ReleaseAt, middleware.GetUserID(c))
	if err != nil {
		handler.RespondError(c, err, "failed to schedule item")
		return
	}
	response.GinSuccessWithMessage(c, "item scheduled", item)
}

type soldOutRequest struct {
	SoldOut *bool `json:"sold_out" binding:"required"`
}

/* SoldOut POST /api/v1/items/:id/sold-out */
func (h *ItemHandler) SoldOut(c *gin.Context) {
	var req soldOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.GinBadRequest(c, "sold_out is required")
		return
	}

	item, err := h.app.Items.SetSoldOut(c.Param("id"), *req.SoldOut)
	if err != nil {
		handler.RespondError(c, err, "failed to update item")
		return
	}
	response.GinSuccess(c, item)
}
