package service

import (
	"context"

	"github.com/Marga-Ghale/powerline-backend/internal/repository"
	"github.com/Marga-Ghale/powerline-backend/internal/types"
)

// ============================================
// User Service
// ============================================

// UserDirectory answers the two questions enrollment asks about accounts.
type UserDirectory interface {
	Exists(ctx context.Context, id string) (bool, error)
	DisplayName(ctx context.Context, id string) (string, error)
	Lookup(ctx context.Context, id string) (*repository.User, error)
}

type UserService interface {
	UserDirectory
	GetByID(ctx context.Context, id string) (*repository.User, error)
	GetByEmail(ctx context.Context, email string) (*repository.User, error)
	IsAdmin(ctx context.Context, id string) (bool, error)
}

type userService struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) UserService {
	return &userService{userRepo: userRepo}
}

func (s *userService) GetByID(ctx context.Context, id string) (*repository.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *userService) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// Exists reports whether id names an active account.
func (s *userService) Exists(ctx context.Context, id string) (bool, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	return user != nil && user.Status != types.UserSuspended, nil
}

func (s *userService) DisplayName(ctx context.Context, id string) (string, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return user.Name, nil
}

// Lookup returns the account or nil when it does not exist.
func (s *userService) Lookup(ctx context.Context, id string) (*repository.User, error) {
	return s.userRepo.FindByID(ctx, id)
}

func (s *userService) IsAdmin(ctx context.Context, id string) (bool, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return user.Role == types.RoleAdmin, nil
}
