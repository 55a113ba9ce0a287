package handler

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	internalmiddleware "github.com/campus-board/enroll-api/internal/middleware"
	"github.com/campus-board/enroll-api/internal/models"
	"github.com/campus-board/enroll-api/internal/repository"
	"github.com/campus-board/enroll-api/internal/service"
)

const integrationSectionID = "9f3b5a7c-12de-48a0-9c31-4a2d6e8f0b11"

type enrollmentStoreStub struct {
	capacity    int
	isOpen      bool
	enrollments map[string]*models.Enrollment
	nextID      int
}

func newEnrollmentStoreStub(capacity int) *enrollmentStoreStub {
	return &enrollmentStoreStub{
		capacity:    capacity,
		isOpen:      true,
		enrollments: make(map[string]*models.Enrollment),
	}
}

func (s *enrollmentStoreStub) Admit(ctx context.Context, studentID, sectionID string) (*models.Enrollment, error) {
	if sectionID != integrationSectionID {
		return nil, sql.ErrNoRows
	}
	if !s.isOpen {
		return nil, repository.ErrSectionClosed
	}
	enrolled := 0
	for _, e := range s.enrollments {
		if e.Status != models.EnrollmentStatusEnrolled {
			continue
		}
		if e.StudentID == studentID {
			return nil, repository.ErrAlreadyEnrolled
		}
		enrolled++
	}
	if enrolled >= s.capacity {
		return nil, repository.ErrSectionFull
	}
	s.nextID++
	now := time.Now().UTC()
	enrollment := &models.Enrollment{
		ID:         fmt.Sprintf("enr-%d", s.nextID),
		StudentID:  studentID,
		SectionID:  sectionID,
		CourseID:   "course-1",
		Status:     models.EnrollmentStatusEnrolled,
		EnrolledAt: now,
	}
	s.enrollments[enrollment.ID] = enrollment
	return enrollment, nil
}

func (s *enrollmentStoreStub) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	for _, e := range s.enrollments {
		if e.ID == id {
			copied := *e
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *enrollmentStoreStub) Drop(ctx context.Context, id string) error {
	for _, e := range s.enrollments {
		if e.ID == id {
			e.Status = models.EnrollmentStatusDropped
		}
	}
	return nil
}

func (s *enrollmentStoreStub) ListActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	var out []models.EnrollmentDetail
	for _, e := range s.enrollments {
		if e.StudentID == studentID && e.Status == models.EnrollmentStatusEnrolled {
			out = append(out, models.EnrollmentDetail{Enrollment: *e})
		}
	}
	return out, nil
}

func buildEnrollmentRouter(store *enrollmentStoreStub) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{
				UserID: c.GetHeader("X-Test-User"),
				Role:   models.UserRole(role),
			})
		}
		c.Next()
	})

	svc := service.NewEnrollmentService(store, service.AdmissionConfig{MaxAttempts: 1}, nil, validator.New(), zap.NewNop())
	h := NewEnrollmentHandler(svc)

	secured := router.Group("")
	secured.GET("/enrollments", internalmiddleware.RBAC(models.RoleStudent), h.List)
	secured.POST("/enrollments", internalmiddleware.RBAC(models.RoleStudent), h.Enroll)
	secured.DELETE("/enrollments/:id", internalmiddleware.RBAC(models.RoleStudent), h.Drop)
	return router
}

func performRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func enrollPayload() *bytes.Buffer {
	return bytes.NewBufferString(`{"section_id":"` + integrationSectionID + `"}`)
}

func TestEnrollmentRoutesIntegration(t *testing.T) {
	store := newEnrollmentStoreStub(1)
	router := buildEnrollmentRouter(store)

	t.Run("enroll unauthenticated", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/enrollments", enrollPayload())
		req.Header.Set("Content-Type", "application/json")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("enroll forbidden for faculty", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/enrollments", enrollPayload())
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleFaculty))
		req.Header.Set("X-Test-User", "fac-1")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("enroll success", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/enrollments", enrollPayload())
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleStudent))
		req.Header.Set("X-Test-User", "stu-1")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusCreated, resp.Code)
		require.Contains(t, resp.Body.String(), `"message":"enrolled successfully"`)
		require.Contains(t, resp.Body.String(), `"status":"enrolled"`)
	})

	t.Run("enroll section full", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/enrollments", enrollPayload())
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleStudent))
		req.Header.Set("X-Test-User", "stu-2")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusConflict, resp.Code)
		require.Contains(t, resp.Body.String(), `"SECTION_FULL"`)
	})

	t.Run("list own enrollments", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/enrollments", nil)
		req.Header.Set("X-Test-Role", string(models.RoleStudent))
		req.Header.Set("X-Test-User", "stu-1")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), integrationSectionID)
	})

	t.Run("drop and reclaim seat", func(t *testing.T) {
		var enrollmentID string
		for _, e := range store.enrollments {
			enrollmentID = e.ID
		}
		require.NotEmpty(t, enrollmentID)

		req, _ := http.NewRequest(http.MethodDelete, "/enrollments/"+enrollmentID, nil)
		req.Header.Set("X-Test-Role", string(models.RoleStudent))
		req.Header.Set("X-Test-User", "stu-1")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)

		req, _ = http.NewRequest(http.MethodPost, "/enrollments", enrollPayload())
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleStudent))
		req.Header.Set("X-Test-User", "stu-2")
		resp = performRequest(router, req)
		require.Equal(t, http.StatusCreated, resp.Code)
	})
}
