package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// docvector 服务代码: 20 (业务服务范围 20-79)
// 错误码格式: AABBCCC
// - AA: 20 (docvector 服务)
// - BB: 类别代码
// - CCC: 序号

var (
	// 请求参数错误 (类别 01)
	ErrInvalidConfiguration = Register(New(MakeCode(ServiceDocVector, CategoryRequest, 1), http.StatusBadRequest, codes.InvalidArgument, "Invalid chunking configuration", "分块配置无效"))
	ErrEmptyDocument        = Register(New(MakeCode(ServiceDocVector, CategoryRequest, 2), http.StatusBadRequest, codes.InvalidArgument, "Document text is empty", "文档内容为空"))
	ErrOrganizationRequired = Register(New(MakeCode(ServiceDocVector, CategoryRequest, 3), http.StatusBadRequest, codes.InvalidArgument, "Organization is required", "缺少组织标识"))
	ErrEmptyQuery           = Register(New(MakeCode(ServiceDocVector, CategoryRequest, 4), http.StatusBadRequest, codes.InvalidArgument, "Search query is empty", "查询内容为空"))

	// 资源错误 (类别 04)
	ErrDocumentNotFound = Register(New(MakeCode(ServiceDocVector, CategoryResource, 1), http.StatusNotFound, codes.NotFound, "Document not found", "文档不存在"))

	// 内部错误 (类别 07)
	ErrEmbeddingFailed     = Register(New(MakeCode(ServiceDocVector, CategoryInternal, 1), http.StatusInternalServerError, codes.Internal, "Embedding generation failed", "向量生成失败"))
	ErrCatastrophicFailure = Register(New(MakeCode(ServiceDocVector, CategoryInternal, 2), http.StatusInternalServerError, codes.Internal, "Document processing failed", "文档处理失败"))

	// 存储错误 (类别 08)
	ErrStorageFailure = Register(New(MakeCode(ServiceDocVector, CategoryDatabase, 1), http.StatusInternalServerError, codes.Internal, "Chunk storage failed", "分块存储失败"))

	// 服务依赖错误 (类别 10)
	ErrEmbeddingUnavailable = Register(New(MakeCode(ServiceDocVector, CategoryNetwork, 1), http.StatusServiceUnavailable, codes.Unavailable, "Embedding service unavailable", "向量服务不可用"))

	// 超时错误 (类别 11)
	ErrSearchTimeout = Register(New(MakeCode(ServiceDocVector, CategoryTimeout, 1), http.StatusGatewayTimeout, codes.DeadlineExceeded, "Search timeout", "检索超时"))
)
