package patient

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/connectmydoc/patient-api/internal/model"
	"github.com/connectmydoc/patient-api/internal/service/patient"
	apperrors "github.com/connectmydoc/patient-api/pkg/errors"
	"github.com/connectmydoc/patient-api/pkg/httputil"
	"github.com/connectmydoc/patient-api/pkg/validator"
)

// Handler serves /patients. Errors are attached with c.Error and rendered
// by middleware.ErrorHandler.
type Handler struct {
	service         patient.PatientService
	defaultPageSize int
}

func NewHandler(service patient.PatientService, defaultPageSize int) *Handler {
	validator.Register()
	if defaultPageSize <= 0 {
		defaultPageSize = 20
	}
	return &Handler{
		service:         service,
		defaultPageSize: defaultPageSize,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients")
	{
		patients.POST("", h.CreatePatient)
		patients.GET("", h.ListPatients)
		patients.GET("/:id", h.GetPatient)
		patients.PUT("/:id", h.UpdatePatient)
		patients.DELETE("/:id", h.DeletePatient)
	}
}

func (h *Handler) CreatePatient(c *gin.Context) {
	var req model.PatientDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Validation(validator.Message(err)))
		return
	}

	out, err := h.service.CreatePatient(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithJSON(c, http.StatusOK, out)
}

func (h *Handler) GetPatient(c *gin.Context) {
	id, err := patientID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	out, err := h.service.GetPatient(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithJSON(c, http.StatusOK, out)
}

func (h *Handler) ListPatients(c *gin.Context) {
	pageNumber, err := queryInt(c, "pageNumber", 1)
	if err != nil {
		_ = c.Error(err)
		return
	}
	pageSize, err := queryInt(c, "pageSize", h.defaultPageSize)
	if err != nil {
		_ = c.Error(err)
		return
	}

	page, err := h.service.ListPatients(c.Request.Context(), pageNumber, pageSize)
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithJSON(c, http.StatusOK, page)
}

func (h *Handler) UpdatePatient(c *gin.Context) {
	id, err := patientID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req model.PatientDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Validation(validator.Message(err)))
		return
	}

	out, err := h.service.UpdatePatient(c.Request.Context(), id, &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithJSON(c, http.StatusOK, out)
}

func (h *Handler) DeletePatient(c *gin.Context) {
	id, err := patientID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	deleted, err := h.service.DeletePatient(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if !deleted {
		_ = c.Error(apperrors.NotFound("patient", nil))
		return
	}
	httputil.RespondWithSuccess(c, "patient deleted", nil)
}

func patientID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.Validation("invalid patient ID")
	}
	return id, nil
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Validationf("%s must be an integer", key)
	}
	return v, nil
}
