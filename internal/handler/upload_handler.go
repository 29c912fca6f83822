package handler

import (
	"fashion-advisor-go/internal/service"
	"fashion-advisor-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UploadHandler 负责上传图片后的分析流程。
type UploadHandler struct {
	analysis service.AnalysisService
}

// NewUploadHandler 创建一个新的 UploadHandler。
func NewUploadHandler(analysis service.AnalysisService) *UploadHandler {
	return &UploadHandler{analysis: analysis}
}

// AnalyzeRequest 是分析请求体，Image 为 data URL 或裸 base64。
type AnalyzeRequest struct {
	Image string `json:"image" binding:"required"`
	Query string `json:"query"`
}

// Analyze 执行 检测 → 检索 → 可选建议。
func (h *UploadHandler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Analyze: Invalid request payload, error: %v", err)
		badRequest(c, "image 不能为空")
		return
	}
	res, err := h.analysis.Analyze(c.Request.Context(), req.Image, req.Query)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}
