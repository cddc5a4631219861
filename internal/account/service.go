package account

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"forge-market/internal/apperr"
	"forge-market/internal/auth"
	"forge-market/internal/model"
	"forge-market/internal/storage"
)

// SignupInput 注册请求。
type SignupInput struct {
	Email     string         `json:"email"`
	Password  string         `json:"password"`
	FirstName string         `json:"first_name"`
	LastName  string         `json:"last_name"`
	Phone     string         `json:"phone"`
	Role      model.UserRole `json:"role"`
}

// AuthResult 注册/登录结果，用户信息不含密码哈希。
type AuthResult struct {
	User  model.User `json:"user"`
	Token string     `json:"token"`
}

// Service 负责注册与登录。
type Service struct {
	store  *storage.Store
	tokens *auth.Manager
	newID  func() string
}

// NewService 创建账号服务。
func NewService(store *storage.Store, tokens *auth.Manager) *Service {
	return &Service{
		store:  store,
		tokens: tokens,
		newID:  func() string { return uuid.NewString() },
	}
}

// Signup 注册新用户，水管工会同时创建初始档案。
func (s *Service) Signup(ctx context.Context, in SignupInput) (AuthResult, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" || in.Password == "" ||
		strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" || in.Role == "" {
		return AuthResult{}, apperr.Validation("missing required fields")
	}
	if !model.ValidRole(in.Role) {
		return AuthResult{}, apperr.Validation("invalid role")
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return AuthResult{}, apperr.Conflict("user already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return AuthResult{}, apperr.Internal(err)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return AuthResult{}, apperr.Internal(err)
	}

	user := &model.User{
		ID:        s.newID(),
		Email:     email,
		Password:  hash,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Phone:     in.Phone,
		Role:      in.Role,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return AuthResult{}, apperr.Internal(err)
	}

	if user.Role == model.RolePlumber {
		profile := &model.PlumberProfile{
			ID:       s.newID(),
			UserID:   user.ID,
			Level:    model.LevelForXP(0),
			IsActive: true,
		}
		if err := s.store.CreateProfile(ctx, profile); err != nil {
			return AuthResult{}, apperr.Internal(err)
		}
	}

	token, err := s.tokens.Token(*user)
	if err != nil {
		return AuthResult{}, apperr.Internal(err)
	}
	return AuthResult{User: *user, Token: token}, nil
}

// Login 校验凭据并签发令牌，凭据错误一律返回同一原因。
func (s *Service) Login(ctx context.Context, email, password string) (AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return AuthResult{}, apperr.Validation("email and password are required")
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AuthResult{}, apperr.Unauthorized("invalid credentials")
		}
		return AuthResult{}, apperr.Internal(err)
	}
	if !auth.CheckPassword(password, user.Password) {
		return AuthResult{}, apperr.Unauthorized("invalid credentials")
	}

	token, err := s.tokens.Token(*user)
	if err != nil {
		return AuthResult{}, apperr.Internal(err)
	}
	return AuthResult{User: *user, Token: token}, nil
}
