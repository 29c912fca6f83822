package service

import (
	"context"
	"errors"
	"strings"

	"fashion-advisor-go/internal/model"
	"fashion-advisor-go/pkg/api"
)

// ErrInvalidProductID 表示商品 ID 为空。
var ErrInvalidProductID = errors.New("product id is required")

// CatalogAPI 是商品目录的远端能力。
type CatalogAPI interface {
	ListProducts(ctx context.Context, page int) ([]api.Product, error)
	ProductMetadata(ctx context.Context, id string) (*api.Product, error)
}

// CatalogService 提供商品列表、热门商品和详情视图。
type CatalogService interface {
	ListPage(ctx context.Context, page int) (*model.ProductPage, error)
	Trending(ctx context.Context) ([]model.ProductPreview, error)
	Product(ctx context.Context, id string) (*model.Product, error)
}

type catalogService struct {
	catalog  CatalogAPI
	pageSize int
}

// NewCatalogService 创建 CatalogService。pageSize 只用于热门商品截断。
func NewCatalogService(catalog CatalogAPI, pageSize int) CatalogService {
	if pageSize < 1 {
		pageSize = 6
	}
	return &catalogService{catalog: catalog, pageSize: pageSize}
}

// ListPage 返回一页商品。空页表示没有更多，NextPage 为 0。
func (s *catalogService) ListPage(ctx context.Context, page int) (*model.ProductPage, error) {
	if page < 1 {
		page = 1
	}
	products, err := s.catalog.ListProducts(ctx, page)
	if err != nil {
		return nil, err
	}
	out := &model.ProductPage{Page: page, Items: toCatalogPreviews(products)}
	if len(out.Items) > 0 {
		out.NextPage = page + 1
	}
	return out, nil
}

// Trending 取第一页的前 pageSize 个商品。
func (s *catalogService) Trending(ctx context.Context) ([]model.ProductPreview, error) {
	products, err := s.catalog.ListProducts(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(products) > s.pageSize {
		products = products[:s.pageSize]
	}
	return toCatalogPreviews(products), nil
}

func (s *catalogService) Product(ctx context.Context, id string) (*model.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidProductID
	}
	p, err := s.catalog.ProductMetadata(ctx, id)
	if err != nil {
		return nil, err
	}
	return toProduct(p, id), nil
}

func toCatalogPreviews(products []api.Product) []model.ProductPreview {
	out := toPreviews(products)
	if out == nil {
		out = []model.ProductPreview{}
	}
	return out
}

func toProduct(p *api.Product, fallbackID string) *model.Product {
	avg, count := p.Rating()
	out := &model.Product{
		ID:          string(p.ID),
		Name:        p.DisplayName(),
		Description: p.Description,
		Brand:       p.Brand,
		Gender:      p.Gender,
		Category:    p.Category,
		ProductLink: p.ProductLink,
		Image:       p.Image,
		Rating:      avg,
		ReviewCount: count,
	}
	if out.ID == "" {
		out.ID = fallbackID
	}
	if p.MaterialInfo != nil {
		out.MaterialInfo = *p.MaterialInfo
	}
	for _, r := range p.Reviews {
		out.Reviews = append(out.Reviews, model.Review{User: r.User, Rating: r.Rating, Comment: r.Comment})
	}
	return out
}
