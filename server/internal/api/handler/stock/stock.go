package stock

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"ugcleaks/server/internal/api/response"
	"ugcleaks/server/internal/service"
	"ugcleaks/server/internal/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

/*
StockHandler 库存查询接口
*/
type StockHandler struct {
	app    *types.App
	logger *zap.Logger
}

func NewStockHandler(app *types.App) *StockHandler {
	return &StockHandler{
		app:    app,
		logger: zap.L().Named("stock-handler"),
	}
}

/*
Get 查询库存
路由：GET /api/v1/roblox-stock?ids=1,2,3 或 ?urls=<逗号分隔的目录链接>
返回以物品 ID 为键的对象；上游失败体现在各条目的 status 中，不返回 5xx。
无法解析出物品 ID 的链接整体返回 400
*/
func (h *StockHandler) Get(c *gin.Context) {
	ids := splitList(c.Query("ids"))
	for _, link := range splitList(c.Query("urls")) {
		id, ok := service.ExtractAssetID(link)
		if !ok {
			response.GinBadRequest(c, fmt.Sprintf("invalid catalog url: %s", link))
			return
		}
		ids = append(ids, id)
	}

	result, err := h.app.Stock.GetStock(c.Request.Context(), ids)
	if err != nil {
		var ve *service.ValidationError
		switch {
		case errors.As(err, &ve):
			response.GinBadRequest(c, ve.Message)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			response.GinError(c, http.StatusServiceUnavailable, "request cancelled")
		default:
			response.GinInternalError(c, "stock lookup failed", err)
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
