package handler

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"deserlab/internal/service"
)

// UserIDHeader carries the learner identity set by the platform in front of this service.
const UserIDHeader = "X-User-ID"

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Keep handlers minimal and free of business logic.
func RegisterRoutes(app *fiber.App, db *sql.DB, lessonSvc service.LessonService) {
	app.Get("/health", HealthCheck(db))

	// Backward-compatible simple liveness probe
	app.Get("/healthz", LivenessProbe())

	lesson := app.Group("/InsecureDeserialization")
	lesson.Post("/task", SubmitTask(lessonSvc))
	lesson.Get("/progress", GetProgress(lessonSvc))
	lesson.Get("/submissions/:id", GetSubmission(lessonSvc))
}

// HealthCheck checks DB connectivity only.
//
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} errorPayload
// @Router /health [get]
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// SubmitTask judges a serialized task holder token.
// Every verdict, including failures, is a 200 with an attack result.
//
// @Summary Submit a serialized task token
// @Tags lesson
// @Accept x-www-form-urlencoded
// @Produce json
// @Param token formData string true "base64url encoded object stream"
// @Param X-User-ID header string false "learner id"
// @Success 200 {object} model.AttackResult
// @Failure 400 {object} errorPayload
// @Router /InsecureDeserialization/task [post]
func SubmitTask(lessonSvc service.LessonService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := taskRequest{UserID: c.Get(UserIDHeader)}
		if hasParam(c, "token") {
			// FormValue looks at the query string and the request body.
			token := c.FormValue("token")
			req.Token = &token
		}
		if err := Validator().Struct(req); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].StructField() == "UserID" {
				return writeError(c, fiber.StatusBadRequest, "INVALID_USER_ID", "invalid user id")
			}
			return writeError(c, fiber.StatusBadRequest, "TOKEN_REQUIRED", "token is required")
		}

		res := lessonSvc.Check(c.UserContext(), service.Submission{UserID: req.UserID, Token: *req.Token})
		return c.JSON(res)
	}
}

// hasParam reports whether key was sent in the query string, an urlencoded
// body or a multipart form, even with an empty value.
func hasParam(c *fiber.Ctx, key string) bool {
	if c.Request().URI().QueryArgs().Has(key) || c.Request().PostArgs().Has(key) {
		return true
	}
	if form, err := c.MultipartForm(); err == nil {
		_, ok := form.Value[key]
		return ok
	}
	return false
}

// GetProgress returns the caller's attempts summary.
//
// @Summary Assignment progress
// @Tags lesson
// @Produce json
// @Param X-User-ID header string false "learner id"
// @Success 200 {object} model.Progress
// @Failure 500 {object} errorPayload
// @Router /InsecureDeserialization/progress [get]
func GetProgress(lessonSvc service.LessonService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := lessonSvc.Progress(c.UserContext(), c.Get(UserIDHeader))
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(p)
	}
}

// GetSubmission streams back an archived token of one of the caller's attempts.
//
// @Summary Archived submission
// @Tags lesson
// @Produce plain
// @Param id path string true "attempt id"
// @Param X-User-ID header string false "learner id"
// @Success 200 {string} string
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Failure 503 {object} errorPayload
// @Router /InsecureDeserialization/submissions/{id} [get]
func GetSubmission(lessonSvc service.LessonService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		rc, info, err := lessonSvc.Submission(c.UserContext(), c.Get(UserIDHeader), id)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrNotFound):
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "submission not found")
			case errors.Is(err, service.ErrArchiveDisabled):
				return writeError(c, fiber.StatusServiceUnavailable, "ARCHIVE_DISABLED", "submission archive is disabled")
			default:
				return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}

		ct := info.ContentType
		if ct == "" {
			ct = "text/plain"
		}
		c.Set(fiber.HeaderContentType, ct)
		size := int(info.Size)
		if size <= 0 {
			size = -1
		}
		// The body stream is closed by fasthttp once it has been written.
		return c.SendStream(rc, size)
	}
}
