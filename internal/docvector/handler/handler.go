// Package handler provides HTTP handlers for the docvector service.
package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docvector/internal/docvector/biz"
	"github.com/kart-io/docvector/pkg/errors"
	"github.com/kart-io/docvector/pkg/infra/middleware/common"
	"github.com/kart-io/docvector/pkg/utils/response"
	"github.com/kart-io/docvector/pkg/validator"
)

// VectorHandler handles document and search HTTP requests.
type VectorHandler struct {
	service biz.Service
}

// NewVectorHandler creates a new VectorHandler.
func NewVectorHandler(service biz.Service) *VectorHandler {
	return &VectorHandler{service: service}
}

// VectorizeRequest represents a vectorize request.
type VectorizeRequest struct {
	Text    string              `json:"text"`
	Options *biz.ProcessOptions `json:"options,omitempty"`
}

// organization 从请求头解析组织上下文。
func organization(c *gin.Context) biz.OrganizationContext {
	return biz.OrganizationContext{
		OrganizationID: strings.TrimSpace(c.GetHeader(common.HeaderOrganizationID)),
	}
}

func lang(c *gin.Context) string {
	if strings.HasPrefix(c.GetHeader("Accept-Language"), validator.LangZH) {
		return validator.LangZH
	}
	return validator.LangEN
}

// decodeJSON 解析请求体，参数语义由 biz 层校验。
func decodeJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.FailWithBindOrValidation(c, err)
		return false
	}
	return true
}

// bindJSON 解析并校验请求体，失败时已写出响应。
func bindJSON(c *gin.Context, req interface{}) bool {
	if !decodeJSON(c, req) {
		return false
	}
	if verr := validator.StructWithLang(req, lang(c)); verr != nil {
		response.FailWithValidation(c, verr)
		return false
	}
	return true
}

// CreateDocument registers document metadata.
func (h *VectorHandler) CreateDocument(c *gin.Context) {
	var req biz.CreateDocumentRequest
	if !bindJSON(c, &req) {
		return
	}

	doc, err := h.service.CreateDocument(c.Request.Context(), organization(c), &req)
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.OK(c, doc)
}

// GetDocument returns one document.
func (h *VectorHandler) GetDocument(c *gin.Context) {
	doc, err := h.service.GetDocument(c.Request.Context(), organization(c), c.Param("id"))
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.OK(c, doc)
}

// ListDocuments returns a page of documents.
func (h *VectorHandler) ListDocuments(c *gin.Context) {
	var req biz.ListDocumentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Fail(c, errors.ErrInvalidParam.WithMessage("invalid query: "+err.Error()))
		return
	}

	list, err := h.service.ListDocuments(c.Request.Context(), organization(c), &req)
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.PageOK(c, list.Items, list.Total, list.Page, list.PageSize)
}

// DeleteDocument removes a document and its chunks.
func (h *VectorHandler) DeleteDocument(c *gin.Context) {
	if err := h.service.DeleteDocument(c.Request.Context(), organization(c), c.Param("id")); err != nil {
		response.FailWithError(c, err)
		return
	}
	response.OK(c, nil)
}

// Vectorize chunks and embeds the supplied text for a document.
// 失败时 data 仍携带 ProcessResult，便于调用方查看逐块结果。
func (h *VectorHandler) Vectorize(c *gin.Context) {
	var req VectorizeRequest
	if !decodeJSON(c, &req) {
		return
	}

	result, err := h.service.ProcessDocumentForVector(c.Request.Context(), organization(c), c.Param("id"), req.Text, req.Options)
	if err != nil {
		if result != nil {
			response.FailWithData(c, errors.FromError(err), result)
			return
		}
		response.FailWithError(c, err)
		return
	}
	response.OK(c, result)
}

// ListChunks returns the chunks of a document in index order.
func (h *VectorHandler) ListChunks(c *gin.Context) {
	chunks, err := h.service.ListChunks(c.Request.Context(), organization(c), c.Param("id"))
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.OK(c, chunks)
}

// Search performs a similarity search.
func (h *VectorHandler) Search(c *gin.Context) {
	var req biz.SearchRequest
	if !decodeJSON(c, &req) {
		return
	}

	resp, err := h.service.SearchSimilarChunks(c.Request.Context(), organization(c), &req)
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.OK(c, resp)
}

// Stats returns the runtime statistics.
func (h *VectorHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context(), organization(c))
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.OK(c, stats)
}
