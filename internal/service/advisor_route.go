package service

import "strings"

// Route 是一次对话轮次选择的远端能力。
type Route string

const (
	RouteNone         Route = ""
	RouteVisual       Route = "visual"
	RouteTextOnly     Route = "text-only"
	RouteOnlineSearch Route = "online-search"
)

// TurnInput 是一次提交的用户输入。Image 为 data URL。
type TurnInput struct {
	Text  string `json:"text"`
	Image string `json:"image,omitempty"`
}

// Blank 表示既没有文字也没有图片。
func (in TurnInput) Blank() bool {
	return strings.TrimSpace(in.Text) == "" && in.Image == ""
}

type routeRule struct {
	match func(in TurnInput, legacy bool) bool
	route Route
}

// 按顺序匹配，第一条命中即生效。
var routeTable = []routeRule{
	{func(in TurnInput, _ bool) bool { return in.Image != "" }, RouteVisual},
	{func(in TurnInput, _ bool) bool { return strings.TrimSpace(in.Text) != "" }, RouteTextOnly},
	{func(_ TurnInput, legacy bool) bool { return legacy }, RouteOnlineSearch},
}

// SelectRoute 根据输入形态选出唯一的调用路径。没有命中时返回 RouteNone。
func SelectRoute(in TurnInput, legacy bool) Route {
	for _, r := range routeTable {
		if r.match(in, legacy) {
			return r.route
		}
	}
	return RouteNone
}
