package user

import (
	"ugcleaks/server/internal/api/handler"
	"ugcleaks/server/internal/api/middleware"
	"ugcleaks/server/internal/api/response"
	"ugcleaks/server/internal/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

/*
UserHandler 当前用户信息和 owner 的用户管理
*/
type UserHandler struct {
	app    *types.App
	logger *zap.Logger
}

func NewUserHandler(app *types.App) *UserHandler {
	return &UserHandler{
		app:    app,
		logger: zap.L().Named("user-handler"),
	}
}

/* Me GET /api/v1/users/me */
func (h *UserHandler) Me(c *gin.Context) {
	user, err := h.app.Users.GetUser(middleware.GetUserID(c))
	if err != nil {
		handler.RespondError(c, err, "failed to load user")
		return
	}
	response.GinSuccess(c, user)
}

/* List GET /api/v1/users?page=&page_size= */
func (h *UserHandler) List(c *gin.Context) {
	page := handler.QueryInt(c, "page", 1)
	pageSize := handler.QueryInt(c, "page_size", 20)

	users, total, err := h.app.Users.ListUsers(page, pageSize)
	if err != nil {
		response.GinInternalError(c, "failed to list users", err)
		return
	}
	response.GinSuccess(c, response.PageData{Items: users, Total: total, Page: page, PageSize: pageSize})
}

type updateRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

/*
UpdateRole 修改角色
路由：POST /api/v1/users/:id/role/update
目标用户需重新登录才能拿到新角色的令牌
*/
func (h *UserHandler) UpdateRole(c *gin.Context) {
	var req updateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.GinBadRequest(c, "invalid request body")
		return
	}

	user, err := h.app.Users.UpdateRole(c.Param("id"), req.Role)
	if err != nil {
		handler.RespondError(c, err, "failed to update role")
		return
	}

	h.logger.Info("角色变更",
		zap.String("operator", middleware.GetUserID(c)),
		zap.String("target", user.ID),
		zap.String("role", req.Role))
	response.GinSuccessWithMessage(c, "role updated", user)
}

/* Delete POST /api/v1/users/:id/delete */
func (h *UserHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.app.Users.DeleteUser(id); err != nil {
		handler.RespondError(c, err, "failed to delete user")
		return
	}

	h.logger.Info("用户已删除", zap.String("operator", middleware.GetUserID(c)), zap.String("target", id))
	response.GinSuccessWithMessage(c, "user deleted", nil)
}
