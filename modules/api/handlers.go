package api

import (
	"encoding/json"
	"errors"
	"strings"

	taskdomain "github.com/example/task-tracker/domain/task"
	"github.com/example/task-tracker/modules/activity"
	"github.com/example/task-tracker/modules/auth"
	"github.com/example/task-tracker/modules/task"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
)

// Handlers contains HTTP handlers for the API.
type Handlers struct {
	auth     auth.AuthPort
	tasks    task.TaskPort
	activity activity.ActivityPort
	stream   ActivityStream
	logger   types.Logger
}

// NewHandlers creates a new Handlers instance. activityPort may be nil.
func NewHandlers(authPort auth.AuthPort, taskPort task.TaskPort, activityPort activity.ActivityPort, logger types.Logger) *Handlers {
	return &Handlers{
		auth:     authPort,
		tasks:    taskPort,
		activity: activityPort,
		logger:   logger,
	}
}

// Register handles account creation.
func (h *Handlers) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return badRequest(c, "Name, email and password are required")
	}

	resp, err := h.auth.Register(c.UserContext(), auth.RegisterRequest{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return h.handleAuthError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(AuthResponse{Token: resp.Token, User: resp.User})
}

// Login handles credential exchange for a token.
func (h *Handlers) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return badRequest(c, "Email and password are required")
	}

	resp, err := h.auth.Login(c.UserContext(), auth.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return h.handleAuthError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(AuthResponse{Token: resp.Token, User: resp.User})
}

// ListTasks returns the caller's tasks, newest first.
func (h *Handlers) ListTasks(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return unauthorized(c)
	}

	tasks, err := h.tasks.ListTasks(c.UserContext(), owner)
	if err != nil {
		return h.handleTaskError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(tasks)
}

// CreateTask stores a new task owned by the caller.
func (h *Handlers) CreateTask(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return unauthorized(c)
	}

	var req CreateTaskRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	created, err := h.tasks.CreateTask(c.UserContext(), owner, taskdomain.CreateInput{
		Title:       deref(req.Title),
		Description: deref(req.Description),
		DueDate:     deref(req.DueDate),
		Priority:    deref(req.Priority),
	})
	if err != nil {
		return h.handleTaskError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(created)
}

// GetTask returns one of the caller's tasks.
func (h *Handlers) GetTask(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return unauthorized(c)
	}

	found, err := h.tasks.GetTask(c.UserContext(), owner, c.Params("id"))
	if err != nil {
		return h.handleTaskError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(found)
}

// UpdateTask applies a partial update to one of the caller's tasks.
func (h *Handlers) UpdateTask(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return unauthorized(c)
	}

	// fasthttp reuses the body buffer after the handler returns.
	patch := append(json.RawMessage(nil), c.Body()...)
	if len(patch) > 0 && !json.Valid(patch) {
		return badRequest(c, "Invalid request body")
	}

	updated, err := h.tasks.UpdateTask(c.UserContext(), owner, c.Params("id"), patch)
	if err != nil {
		return h.handleTaskError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(updated)
}

// DeleteTask removes one of the caller's tasks.
func (h *Handlers) DeleteTask(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return unauthorized(c)
	}

	if err := h.tasks.DeleteTask(c.UserContext(), owner, c.Params("id")); err != nil {
		return h.handleTaskError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(MessageResponse{Message: "Task removed"})
}

// ListActivity returns the caller's recent task activity.
func (h *Handlers) ListActivity(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return unauthorized(c)
	}
	if h.activity == nil {
		return c.Status(fiber.StatusOK).JSON([]activity.Entry{})
	}

	entries, err := h.activity.ListActivity(c.UserContext(), owner)
	if err != nil {
		return h.internalError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(entries)
}

// handleTaskError maps task service errors to HTTP responses.
func (h *Handlers) handleTaskError(c *fiber.Ctx, err error) error {
	var verr *taskdomain.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "validation_error",
			Message: verr.Field + " " + verr.Reason,
		})
	case errors.Is(err, taskdomain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Task not found",
		})
	case errors.Is(err, taskdomain.ErrNotOwner):
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error:   "not_authorized",
			Message: "Not authorized",
		})
	case errors.Is(err, taskdomain.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
			Error:   "conflict",
			Message: "Task was modified by another request",
		})
	default:
		return h.internalError(c, err)
	}
}

// handleAuthError maps auth service errors without exposing internals.
func (h *Handlers) handleAuthError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error:   "unauthorized",
			Message: "Invalid email or password",
		})
	case errors.Is(err, auth.ErrUserExists):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
			Error:   "conflict",
			Message: "User with this email already exists",
		})
	case errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrNameRequired),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrPasswordTooLong):
		return badRequest(c, capitalize(err.Error()))
	default:
		return h.internalError(c, err)
	}
}

func (h *Handlers) internalError(c *fiber.Ctx, err error) error {
	h.logger.Error("Request failed", "method", c.Method(), "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error:   "internal_error",
		Message: "Server error",
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error:   "bad_request",
		Message: message,
	})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
		Error:   "unauthorized",
		Message: "User not authenticated",
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
