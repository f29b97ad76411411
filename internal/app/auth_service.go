package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"ragdesk/internal/model"
	"ragdesk/internal/pkg/jwtutil"
	"ragdesk/internal/repository"
)

const minAdminPasswordLen = 8

type AuthService struct {
	userRepo      *repository.UserRepository
	adminRepo     *repository.AdminRepository
	jwtSecret     string
	jwtExpiration time.Duration
}

type LoginInput struct {
	Username string
	Password string
}

type CreateAdminInput struct {
	Username string
	Email    string
	Password string
}

type AdminAuthResult struct {
	Token string
	Admin *model.Admin
}

func NewAuthService(userRepo *repository.UserRepository, adminRepo *repository.AdminRepository, jwtSecret string, jwtExpiration time.Duration) *AuthService {
	return &AuthService{
		userRepo:      userRepo,
		adminRepo:     adminRepo,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
	}
}

// ResolveUser maps the identity provider's user id to a local user, creating
// the record on first sight.
func (s *AuthService) ResolveUser(externalID, name, email string) (*model.User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, ErrInvalidInput
	}
	return s.userRepo.GetOrCreateByExternalID(externalID, strings.TrimSpace(name), strings.TrimSpace(strings.ToLower(email)))
}

func (s *AuthService) GetUserByID(id uint) (*model.User, error) {
	if id == 0 {
		return nil, ErrInvalidInput
	}
	return s.userRepo.GetByID(id)
}

// IssueUserToken signs a user token the way the identity provider does. It
// backs local development and tests.
func (s *AuthService) IssueUserToken(externalID, name, email string) (string, error) {
	if strings.TrimSpace(externalID) == "" {
		return "", ErrInvalidInput
	}
	return jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, externalID, name, email, jwtutil.RoleUser)
}

func (s *AuthService) AdminLogin(input LoginInput) (*AdminAuthResult, error) {
	username := strings.TrimSpace(input.Username)
	password := strings.TrimSpace(input.Password)
	if username == "" || password == "" {
		return nil, ErrInvalidInput
	}

	admin, err := s.adminRepo.GetByUsername(username)
	if err != nil {
		return nil, err
	}
	if admin == nil {
		return nil, ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredential
	}

	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, strconv.FormatUint(uint64(admin.ID), 10), admin.Username, admin.Email, jwtutil.RoleAdmin)
	if err != nil {
		return nil, err
	}
	return &AdminAuthResult{Token: token, Admin: admin}, nil
}

func (s *AuthService) CreateAdmin(input CreateAdminInput) (*model.Admin, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(strings.ToLower(input.Email))
	password := strings.TrimSpace(input.Password)
	if username == "" || email == "" || len(password) < minAdminPasswordLen {
		return nil, ErrInvalidInput
	}

	existing, err := s.adminRepo.GetByUsername(username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUsernameExists
	}
	existing, err = s.adminRepo.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password failed: %w", err)
	}
	admin := &model.Admin{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.adminRepo.Create(admin); err != nil {
		return nil, err
	}
	return admin, nil
}
