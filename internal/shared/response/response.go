package response

import (
	"github.com/gin-gonic/gin"
)

type PaginationMeta struct {
	Total      int64 `json:"total,omitempty"`
	TotalPages int   `json:"totalPages,omitempty"`
	Page       int   `json:"page,omitempty"`
	PageSize   int   `json:"pageSize,omitempty"`
}

func NewPaginationMeta(total int64, page, limit int) PaginationMeta {
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}

	return PaginationMeta{
		Total:      total,
		TotalPages: totalPages,
		Page:       page,
		PageSize:   limit,
	}
}

// ApiEnvelope is the uniform response shape. RequestID echoes the tracing
// id so clients can quote it when disputing an admission decision.
type ApiEnvelope struct {
	Ok        bool            `json:"ok"`
	RequestID string          `json:"request_id,omitempty"`
	Data      any             `json:"data,omitempty"`
	Meta      *PaginationMeta `json:"meta,omitempty"`
	Error     any             `json:"error,omitempty"`
}

func Success(c *gin.Context, status int, data interface{}, meta *PaginationMeta) {
	c.JSON(status, ApiEnvelope{
		Ok:        true,
		RequestID: c.GetString("request_id"),
		Data:      data,
		Meta:      meta,
	})
}

func Error(c *gin.Context, status int, errorCode string, message string, details interface{}) {
	c.JSON(status, ApiEnvelope{
		Ok:        false,
		RequestID: c.GetString("request_id"),
		Error: map[string]interface{}{
			"code":    errorCode,
			"message": message,
			"details": details,
		},
	})
}
