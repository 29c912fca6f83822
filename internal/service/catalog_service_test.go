package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"fashion-advisor-go/pkg/api"
)

type fakeCatalog struct {
	pages    map[int][]api.Product
	product  *api.Product
	err      error
	gotPages []int
}

func (f *fakeCatalog) ListProducts(_ context.Context, page int) ([]api.Product, error) {
	f.gotPages = append(f.gotPages, page)
	return f.pages[page], f.err
}

func (f *fakeCatalog) ProductMetadata(context.Context, string) (*api.Product, error) {
	return f.product, f.err
}

func productsN(n int) []api.Product {
	out := make([]api.Product, n)
	for i := range out {
		out[i] = api.Product{ID: api.FlexString(fmt.Sprint(i + 1)), Name: fmt.Sprintf("Item %d", i+1)}
	}
	return out
}

func TestTrendingTruncatesToPageSize(t *testing.T) {
	cat := &fakeCatalog{pages: map[int][]api.Product{1: productsN(10)}}
	s := NewCatalogService(cat, 6)

	items, err := s.Trending(context.Background())
	if err != nil {
		t.Fatalf("Trending err: %v", err)
	}
	if len(items) != 6 || items[0].Name != "Item 1" {
		t.Fatalf("unexpected items: %+v", items)
	}
	if len(cat.gotPages) != 1 || cat.gotPages[0] != 1 {
		t.Fatalf("trending should read page 1, got %v", cat.gotPages)
	}
}

func TestListPagePagination(t *testing.T) {
	cat := &fakeCatalog{pages: map[int][]api.Product{1: productsN(3)}}
	s := NewCatalogService(cat, 6)

	page, err := s.ListPage(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListPage err: %v", err)
	}
	if page.Page != 1 || page.NextPage != 2 || len(page.Items) != 3 {
		t.Fatalf("unexpected page: %+v", page)
	}
	empty, _ := s.ListPage(context.Background(), 2)
	if empty.NextPage != 0 || empty.Items == nil || len(empty.Items) != 0 {
		t.Fatalf("empty page should end pagination: %+v", empty)
	}
}

func TestProductDetail(t *testing.T) {
	material := "cotton"
	cat := &fakeCatalog{product: &api.Product{
		Title:        "Shirt",
		MaterialInfo: &material,
		Reviews:      []api.Review{{Rating: 3}, {Rating: 5}},
	}}
	s := NewCatalogService(cat, 6)

	p, err := s.Product(context.Background(), "9")
	if err != nil {
		t.Fatalf("Product err: %v", err)
	}
	if p.ID != "9" || p.Name != "Shirt" || p.MaterialInfo != "cotton" || p.Rating != 4 || p.ReviewCount != 2 {
		t.Fatalf("unexpected product: %+v", p)
	}
	if _, err := s.Product(context.Background(), " "); !errors.Is(err, ErrInvalidProductID) {
		t.Fatalf("expected ErrInvalidProductID, got %v", err)
	}
}
