package handler

import (
	"strconv"

	"fashion-advisor-go/internal/service"

	"github.com/gin-gonic/gin"
)

// ProductHandler 负责商品列表、热门和详情。
type ProductHandler struct {
	catalog service.CatalogService
}

// NewProductHandler 创建一个新的 ProductHandler。
func NewProductHandler(catalog service.CatalogService) *ProductHandler {
	return &ProductHandler{catalog: catalog}
}

// List 按页返回商品，page 缺省或非法时为 1。
func (h *ProductHandler) List(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		page = 1
	}
	out, err := h.catalog.ListPage(c.Request.Context(), page)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, out)
}

// Trending 返回首页热门商品。
func (h *ProductHandler) Trending(c *gin.Context) {
	items, err := h.catalog.Trending(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, items)
}

// Detail 返回单个商品详情。
func (h *ProductHandler) Detail(c *gin.Context) {
	p, err := h.catalog.Product(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, p)
}
