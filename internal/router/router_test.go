package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/connectmydoc/patient-api/internal/handler/health"
	"github.com/connectmydoc/patient-api/internal/handler/patient"
	"github.com/connectmydoc/patient-api/internal/handler/prometheus"
	"github.com/connectmydoc/patient-api/internal/middleware"
	"github.com/connectmydoc/patient-api/internal/model"
	apperrors "github.com/connectmydoc/patient-api/pkg/errors"
)

type okPinger struct{}

func (okPinger) PingContext(context.Context) error { return nil }

type emptyService struct{}

func (emptyService) CreatePatient(context.Context, *model.PatientDTO) (*model.PatientDTO, error) {
	return nil, apperrors.Validation("patientName is required")
}

func (emptyService) GetPatient(context.Context, int64) (*model.PatientDTO, error) {
	return nil, apperrors.NotFound("patient", nil)
}

func (emptyService) ListPatients(_ context.Context, pageNumber, pageSize int) (*model.PaginatedResult[*model.PatientDTO], error) {
	return &model.PaginatedResult[*model.PatientDTO]{
		Items:      []*model.PatientDTO{},
		PageNumber: pageNumber,
		PageSize:   pageSize,
	}, nil
}

func (emptyService) UpdatePatient(context.Context, int64, *model.PatientDTO) (*model.PatientDTO, error) {
	return nil, apperrors.NotFound("patient", nil)
}

func (emptyService) DeletePatient(context.Context, int64) (bool, error) {
	return false, nil
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := NewRouter(
		zerolog.Nop(),
		health.NewHandler(okPinger{}),
		patient.NewHandler(emptyService{}, 20),
		prometheus.New("test"),
		RouterConfig{
			RateLimit:      100,
			RateBurst:      100,
			RequestTimeout: time.Second,
			MaxBodyBytes:   1 << 20,
			CORSConfig:     middleware.DefaultCORSConfig(nil),
		},
	)
	r.Setup()
	return r.Engine()
}

func TestRoutes(t *testing.T) {
	engine := newTestRouter()

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodGet, "/health/live", http.StatusOK},
		{http.MethodGet, "/health/ready", http.StatusOK},
		{http.MethodGet, "/api/patients", http.StatusOK},
		{http.MethodGet, "/api/patients/12", http.StatusNotFound},
		{http.MethodGet, "/api/patients/abc", http.StatusBadRequest},
		{http.MethodDelete, "/api/patients/12", http.StatusNotFound},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))
		})
	}
}

func TestMetricsEndpointReportsRequests(t *testing.T) {
	engine := newTestRouter()

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `test_http_requests_total{method="GET",path="/health/live",status="200"} 1`)
}
