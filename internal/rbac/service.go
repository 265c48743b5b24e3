package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/optimapos/optimapos/internal/shared"
)

const permissionsTTL = 60 * time.Second

// Service orchestrates role and permission management. Effective
// permission sets are cached per user and dropped on every write that
// can change them.
type Service struct {
	repo  Repository
	cache *redis.Client
}

func NewService(repo Repository, cache *redis.Client) *Service {
	return &Service{repo: repo, cache: cache}
}

func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		fields := shared.NewFieldErrors()
		fields.Add("name", "is required")
		return Role{}, fields.Err()
	}
	return s.repo.CreateRole(ctx, Role{Name: name, Description: strings.TrimSpace(description)})
}

func (s *Service) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		fields := shared.NewFieldErrors()
		fields.Add("name", "is required")
		return Role{}, fields.Err()
	}
	role, err := s.repo.UpdateRole(ctx, Role{ID: id, Name: name, Description: strings.TrimSpace(description)})
	if err != nil {
		return Role{}, err
	}
	s.invalidateAll(ctx)
	return role, nil
}

func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.invalidateAll(ctx)
	return nil
}

func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// EnsurePermission upserts a permission, keeping its description current.
func (s *Service) EnsurePermission(ctx context.Context, name, description string) (Permission, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		fields := shared.NewFieldErrors()
		fields.Add("name", "is required")
		return Permission{}, fields.Err()
	}
	return s.repo.EnsurePermission(ctx, name, description)
}

func (s *Service) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	return s.repo.RolePermissions(ctx, roleID)
}

// SetRolePermissions replaces a role's permission set.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.repo.SetRolePermissions(ctx, roleID, permissionIDs); err != nil {
		return err
	}
	s.invalidateAll(ctx)
	return nil
}

func (s *Service) AssignRole(ctx context.Context, userID, roleID int64) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.repo.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.invalidateUser(ctx, userID)
	return nil
}

func (s *Service) RemoveRole(ctx context.Context, userID, roleID int64) error {
	if err := s.repo.RemoveRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.invalidateUser(ctx, userID)
	return nil
}

func (s *Service) UserRoles(ctx context.Context, userID int64) ([]Role, error) {
	return s.repo.UserRoles(ctx, userID)
}

// EffectivePermissions returns the deduplicated permission names
// granted to a user through role membership.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	key := permissionsKey(userID)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key).Bytes(); err == nil {
			var perms []string
			if json.Unmarshal(raw, &perms) == nil {
				return perms, nil
			}
		}
	}
	perms, err := s.repo.EffectivePermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if raw, err := json.Marshal(perms); err == nil {
			s.cache.Set(ctx, key, raw, permissionsTTL)
		}
	}
	return perms, nil
}

// HasRole reports whether the user holds the named role.
func (s *Service) HasRole(ctx context.Context, userID int64, role string) (bool, error) {
	roles, err := s.repo.UserRoles(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, r := range roles {
		if strings.EqualFold(r.Name, role) {
			return true, nil
		}
	}
	return false, nil
}

// HasPermission reports whether the user's effective set contains the
// named permission.
func (s *Service) HasPermission(ctx context.Context, userID int64, permission string) (bool, error) {
	perms, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if strings.EqualFold(p, permission) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) invalidateUser(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	s.cache.Del(ctx, permissionsKey(userID))
}

func (s *Service) invalidateAll(ctx context.Context) {
	if s.cache == nil {
		return
	}
	iter := s.cache.Scan(ctx, 0, "rbac:perms:*", 100).Iterator()
	for iter.Next(ctx) {
		s.cache.Del(ctx, iter.Val())
	}
}

func permissionsKey(userID int64) string {
	return fmt.Sprintf("rbac:perms:%d", userID)
}
