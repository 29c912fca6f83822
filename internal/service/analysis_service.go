package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fashion-advisor-go/internal/model"
	"fashion-advisor-go/pkg/api"
	"fashion-advisor-go/pkg/log"
)

// ErrMissingImage 表示分析请求没有图片。
var ErrMissingImage = errors.New("image is required")

// VisionAPI 是图片分析流水线的远端能力。
type VisionAPI interface {
	DetectObjects(ctx context.Context, imageB64 string) (*api.DetectionResult, error)
	RetrieveImages(ctx context.Context, imageB64 string, items *api.DetectionResult, k int) (*api.RetrievalResult, error)
	GenerateAdvisorResponse(ctx context.Context, imageB64 string, retrieval *api.RetrievalResult, query string) (*api.AdvisorResponse, error)
}

// DetectedItem 是一个检测到的服饰。
type DetectedItem struct {
	Label string    `json:"label"`
	Score float64   `json:"score"`
	BBox  []float64 `json:"bbox,omitempty"`
}

// AnalysisResult 是上传分析的输出。
type AnalysisResult struct {
	Items      []DetectedItem         `json:"items"`
	Matches    []model.ProductPreview `json:"matches"`
	Similarity []float64              `json:"similarity"`
	Advice     string                 `json:"advice,omitempty"`
	Products   []model.ProductPreview `json:"products,omitempty"`
}

// AnalysisService 执行 检测 → 检索 → 可选的建议生成。
type AnalysisService interface {
	Analyze(ctx context.Context, imageB64, query string) (*AnalysisResult, error)
}

type analysisService struct {
	vision VisionAPI
	k      int
}

// NewAnalysisService 创建 AnalysisService，k 为检索返回的相似商品数。
func NewAnalysisService(vision VisionAPI, k int) AnalysisService {
	if k < 1 {
		k = 3
	}
	return &analysisService{vision: vision, k: k}
}

// Analyze 顺序调用三个远端能力，任一步失败即返回。query 为空时跳过建议生成。
func (s *analysisService) Analyze(ctx context.Context, imageB64, query string) (*AnalysisResult, error) {
	if imageB64 == "" {
		return nil, ErrMissingImage
	}

	// 1. 检测图片中的服饰
	detection, err := s.vision.DetectObjects(ctx, imageB64)
	if err != nil {
		return nil, err
	}

	// 2. 用检测结果检索相似商品
	retrieval, err := s.vision.RetrieveImages(ctx, imageB64, detection, s.k)
	if err != nil {
		return nil, err
	}

	result := &AnalysisResult{
		Items:      detectedItems(detection),
		Matches:    retrievalMatches(retrieval),
		Similarity: retrieval.SimilarityScores,
	}
	log.Infow("图片分析完成", "items", len(result.Items), "matches", len(result.Matches))

	if strings.TrimSpace(query) == "" {
		return result, nil
	}

	// 3. 结合检索结果生成建议
	advice, err := s.vision.GenerateAdvisorResponse(ctx, imageB64, retrieval, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate advice: %w", err)
	}
	text, ok := advice.Text()
	if !ok {
		text = fallbackReplyText
	}
	result.Advice = text
	result.Products = toPreviews(advice.Products)
	return result, nil
}

func detectedItems(d *api.DetectionResult) []DetectedItem {
	items := make([]DetectedItem, 0, len(d.Labels))
	for i, label := range d.Labels {
		item := DetectedItem{Label: label}
		if i < len(d.Scores) {
			item.Score = d.Scores[i]
		}
		if i < len(d.BBoxes) {
			item.BBox = d.BBoxes[i]
		}
		items = append(items, item)
	}
	return items
}

// retrievalMatches 优先使用目录商品，缺失时用检索到的图片路径代替。
func retrievalMatches(r *api.RetrievalResult) []model.ProductPreview {
	matches := make([]model.ProductPreview, 0, len(r.RetrievedImagePaths))
	for i, path := range r.RetrievedImagePaths {
		if i < len(r.Products) && r.Products[i] != nil {
			p := r.Products[i]
			image := p.Image
			if image == "" {
				image = path
			}
			matches = append(matches, model.ProductPreview{
				ID:          string(p.ID),
				Image:       image,
				Name:        p.DisplayName(),
				Description: p.Description,
			})
			continue
		}
		matches = append(matches, model.ProductPreview{Image: path})
	}
	return matches
}
