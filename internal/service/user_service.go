package service

import (
	"context"
	"errors"

	"crystalgate/internal/model"
	"crystalgate/internal/repository"
)

var ErrUserNotFound = errors.New("user not found")

type UserService interface {
	// Ensure returns the user, creating it on the free tier on first access.
	Ensure(ctx context.Context, id string) (*model.User, error)
	Get(ctx context.Context, id string) (*model.User, error)
}

type userService struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) UserService {
	return &userService{userRepo: userRepo}
}

func (s *userService) Ensure(ctx context.Context, id string) (*model.User, error) {
	return s.userRepo.GetOrCreate(ctx, id)
}

func (s *userService) Get(ctx context.Context, id string) (*model.User, error) {
	u, err := s.userRepo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}
