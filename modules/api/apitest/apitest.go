// Package apitest builds an in-process API backed by real services over a
// private sqlite database, for tests that need the full HTTP surface
// without the message bus.
package apitest

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	taskdomain "github.com/example/task-tracker/domain/task"
	userdomain "github.com/example/task-tracker/domain/user"
	"github.com/example/task-tracker/modules/activity"
	"github.com/example/task-tracker/modules/api"
	"github.com/example/task-tracker/modules/auth"
	"github.com/example/task-tracker/modules/task"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NopLogger implements types.Logger and discards everything.
type NopLogger struct{}

func (l NopLogger) Debug(msg string, args ...any)         {}
func (l NopLogger) Info(msg string, args ...any)          {}
func (l NopLogger) Warn(msg string, args ...any)          {}
func (l NopLogger) Error(msg string, args ...any)         {}
func (l NopLogger) With(args ...any) types.Logger         { return l }
func (l NopLogger) WithError(err error) types.Logger      { return l }
func (l NopLogger) WithModule(module string) types.Logger { return l }

// LocalAuth implements auth.AuthPort by calling the service directly.
type LocalAuth struct {
	Service *auth.AuthService
}

var _ auth.AuthPort = (*LocalAuth)(nil)

func (a *LocalAuth) Register(ctx context.Context, req auth.RegisterRequest) (*auth.SessionResponse, error) {
	s, err := a.Service.Register(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	return &auth.SessionResponse{Token: s.Token, ExpiresIn: s.ExpiresIn, User: s.User.Profile()}, nil
}

func (a *LocalAuth) Login(ctx context.Context, req auth.LoginRequest) (*auth.SessionResponse, error) {
	s, err := a.Service.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	return &auth.SessionResponse{Token: s.Token, ExpiresIn: s.ExpiresIn, User: s.User.Profile()}, nil
}

func (a *LocalAuth) ValidateToken(ctx context.Context, token string) (*userdomain.Claims, error) {
	return a.Service.ValidateToken(ctx, token)
}

func (a *LocalAuth) GetUser(ctx context.Context, userID string) (*userdomain.Profile, error) {
	u, err := a.Service.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	p := u.Profile()
	return &p, nil
}

// LocalTasks implements task.TaskPort by calling the service directly.
type LocalTasks struct {
	Service *task.TaskService
}

var _ task.TaskPort = (*LocalTasks)(nil)

func (t *LocalTasks) ListTasks(ctx context.Context, ownerID string) ([]taskdomain.Task, error) {
	return t.Service.List(ctx, ownerID)
}

func (t *LocalTasks) CreateTask(ctx context.Context, ownerID string, in taskdomain.CreateInput) (*taskdomain.Task, error) {
	return t.Service.Create(ctx, ownerID, in)
}

func (t *LocalTasks) GetTask(ctx context.Context, ownerID, taskID string) (*taskdomain.Task, error) {
	return t.Service.Get(ctx, ownerID, taskID)
}

func (t *LocalTasks) UpdateTask(ctx context.Context, ownerID, taskID string, patch json.RawMessage) (*taskdomain.Task, error) {
	return t.Service.Update(ctx, ownerID, taskID, patch)
}

func (t *LocalTasks) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	return t.Service.Delete(ctx, ownerID, taskID)
}

// Server is an in-process API. Hub backs the activity socket; publish to
// it to simulate task events.
type Server struct {
	App   *fiber.App
	DB    *gorm.DB
	Auth  *LocalAuth
	Tasks *LocalTasks
	Hub   *activity.Hub
}

// New builds a Server whose database lives in t's temp dir.
func New(t testing.TB) *Server {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "api.db")), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(&userdomain.User{}, &taskdomain.Task{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	log := NopLogger{}
	authPort := &LocalAuth{Service: auth.NewAuthService(
		auth.NewUserRepository(db),
		auth.NewPasswordHasherWithCost(bcrypt.MinCost),
		auth.NewJWTManager(auth.JWTConfig{SecretKey: "apitest-secret", TTL: time.Hour, Issuer: "apitest"}),
	)}
	taskPort := &LocalTasks{Service: task.NewTaskService(task.NewTaskRepository(db), nil, log)}
	hub := activity.NewHub()

	app := api.NewRouter(
		api.NewHandlers(authPort, taskPort, nil, log),
		authPort,
		api.Config{Stream: hub},
		log,
	)

	return &Server{App: app, DB: db, Auth: authPort, Tasks: taskPort, Hub: hub}
}

// Listen serves the API on a loopback port until t ends and returns its base URL.
func (s *Server) Listen(t testing.TB) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	go func() { _ = s.App.Listener(ln) }()
	t.Cleanup(func() { _ = s.App.Shutdown() })

	return "http://" + ln.Addr().String()
}

// Token registers a user and returns their bearer token and id.
func (s *Server) Token(t testing.TB, name string) (token, userID string) {
	t.Helper()
	resp, err := s.Auth.Register(context.Background(), auth.RegisterRequest{
		Name:     name,
		Email:    fmt.Sprintf("%s@example.com", name),
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return resp.Token, resp.User.ID
}
