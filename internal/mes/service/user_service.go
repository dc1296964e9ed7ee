package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bitfantasy/nimo-mes/internal/mes/apperr"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/policy"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
)

// UserService 用户管理服务
type UserService struct {
	userRepo *repository.UserRepository
}

// NewUserService 创建用户服务
func NewUserService(userRepo *repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

// CreateUserRequest 创建用户请求
type CreateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// UpdateUserRequest 更新用户请求，nil 字段表示不修改
type UpdateUserRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Role     *string `json:"role"`
}

func validateUser(u *entity.User) error {
	verr := &apperr.ValidationError{}
	if u.Name == "" {
		verr.Add("name", "can't be blank")
	}
	if u.Email == "" {
		verr.Add("email", "can't be blank")
	} else if !strings.Contains(u.Email, "@") {
		verr.Add("email", "is invalid")
	}
	if !entity.ValidRole(u.Role) {
		verr.Add("role", "is not a valid role")
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

// List 用户列表
func (s *UserService) List(ctx context.Context, user *entity.User, f repository.UserFilters, page, pageSize int) ([]entity.User, int64, error) {
	if err := policy.Authorize(user, policy.ActionList, policy.ResourceUser, policy.Ref{}); err != nil {
		return nil, 0, err
	}
	return s.userRepo.List(ctx, policy.ScopeUsers(user), f, page, pageSize)
}

// Get 读取单个用户
func (s *UserService) Get(ctx context.Context, user *entity.User, id string) (*entity.User, error) {
	target, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(user, policy.ActionView, policy.ResourceUser, policy.Ref{User: target}); err != nil {
		return nil, err
	}
	return target, nil
}

// Create 创建用户（仅 admin）
func (s *UserService) Create(ctx context.Context, user *entity.User, req CreateUserRequest) (*entity.User, error) {
	if err := policy.Authorize(user, policy.ActionCreate, policy.ResourceUser, policy.Ref{}); err != nil {
		return nil, err
	}

	role := req.Role
	if role == "" {
		role = entity.RoleOperator
	}
	target := &entity.User{
		ID:    uuid.New().String()[:32],
		Name:  req.Name,
		Email: req.Email,
		Role:  role,
	}
	if err := validateUser(target); err != nil {
		return nil, err
	}
	if len(req.Password) < 6 {
		verr := &apperr.ValidationError{}
		verr.Add("password", "is too short (minimum is 6 characters)")
		return nil, verr
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	target.PasswordHash = string(hash)

	if err := s.userRepo.Create(ctx, target); err != nil {
		return nil, err
	}
	return target, nil
}

// Update 更新用户。role 字段只有 admin 能改，其余人改自己的资料
func (s *UserService) Update(ctx context.Context, user *entity.User, id string, req UpdateUserRequest) (*entity.User, error) {
	target, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(user, policy.ActionUpdate, policy.ResourceUser, policy.Ref{User: target}); err != nil {
		return nil, err
	}

	permitted := policy.PermittedUserFields(user)
	if req.Name != nil && permitted["name"] {
		target.Name = *req.Name
	}
	if req.Email != nil && permitted["email"] {
		target.Email = *req.Email
	}
	if req.Role != nil {
		if !permitted["role"] {
			return nil, apperr.Forbidden("change_role", "user")
		}
		target.Role = *req.Role
	}
	if err := validateUser(target); err != nil {
		return nil, err
	}
	if req.Password != nil && permitted["password"] {
		if len(*req.Password) < 6 {
			verr := &apperr.ValidationError{}
			verr.Add("password", "is too short (minimum is 6 characters)")
			return nil, verr
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		target.PasswordHash = string(hash)
	}

	if err := s.userRepo.Update(ctx, target); err != nil {
		return nil, err
	}
	return target, nil
}

// Delete 删除用户（仅 admin，且不能删自己）
func (s *UserService) Delete(ctx context.Context, user *entity.User, id string) error {
	target, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := policy.Authorize(user, policy.ActionDelete, policy.ResourceUser, policy.Ref{User: target}); err != nil {
		return err
	}
	if target.ID == user.ID {
		verr := &apperr.ValidationError{}
		verr.Add("base", "cannot delete your own account")
		return verr
	}
	return s.userRepo.Delete(ctx, target.ID)
}
