package admission

import (
	"net/http"
	"presencegate/internal/shared/apperror"
	"presencegate/internal/shared/response"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func writeServiceError(c *gin.Context, err error) {
	httpErr := apperror.ToHTTP(err)
	response.Error(c, httpErr.Status, httpErr.Code, httpErr.Message, httpErr.Details)
}

func (h *Handler) CheckIn(c *gin.Context) {
	var req CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		mapped := apperror.ToHTTP(apperror.MapValidationError(err))
		response.Error(c, mapped.Status, mapped.Code, mapped.Message, mapped.Details)
		return
	}

	sub := Submission{
		UserID:    c.GetString("user_id"),
		DeviceID:  c.GetString("device_id"),
		OfficeID:  c.GetString("office_id"),
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Network:   req.Network,
		Beacon:    req.Beacon,
		NFC:       req.NFC,
		QR:        req.QR,
		Face:      req.Face,
	}

	res, err := h.service.CheckIn(c.Request.Context(), sub)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	status := http.StatusCreated
	if res.Record == nil {
		// Rejected by policy evaluation: decision delivered, nothing stored.
		status = http.StatusOK
	}
	response.Success(c, status, res, nil)
}

func (h *Handler) CheckOut(c *gin.Context) {
	var req CheckOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		mapped := apperror.ToHTTP(apperror.MapValidationError(err))
		response.Error(c, mapped.Status, mapped.Code, mapped.Message, mapped.Details)
		return
	}

	sub := Submission{
		UserID:    c.GetString("user_id"),
		DeviceID:  c.GetString("device_id"),
		OfficeID:  c.GetString("office_id"),
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
	}

	res, err := h.service.CheckOut(c.Request.Context(), sub)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, res, nil)
}
