package model

import "fmt"

// ProductPreview 是聊天与列表中展示的商品卡片，只用于展示和跳转详情。
type ProductPreview struct {
	ID          string `json:"id,omitempty"`
	Image       string `json:"image"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Store 是附近门店条目。
type Store struct {
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// MapEmbedURL 返回门店的内嵌地图地址。
func (s Store) MapEmbedURL() string {
	return fmt.Sprintf("https://www.google.com/maps?q=%v,%v&z=15&output=embed", s.Latitude, s.Longitude)
}

// Review 是商品评价。
type Review struct {
	User    string `json:"user"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// Product 是商品详情视图。
type Product struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	MaterialInfo string   `json:"materialInfo,omitempty"`
	Brand        string   `json:"brand,omitempty"`
	Gender       string   `json:"gender,omitempty"`
	Category     string   `json:"category,omitempty"`
	ProductLink  string   `json:"productLink,omitempty"`
	Image        string   `json:"image"`
	Rating       float64  `json:"rating"`
	ReviewCount  int      `json:"reviewCount"`
	Reviews      []Review `json:"reviews,omitempty"`
}

// ProductPage 是目录分页结果。NextPage 为 0 表示没有更多。
type ProductPage struct {
	Page     int              `json:"page"`
	Items    []ProductPreview `json:"items"`
	NextPage int              `json:"nextPage,omitempty"`
}
