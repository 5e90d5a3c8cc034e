package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/marketline/marketchat/internal/db"
	"github.com/marketline/marketchat/internal/db/sqlc"
)

// Store is the subset of queries the resolver needs.
type Store interface {
	GetUserByID(ctx context.Context, id pgtype.UUID) (sqlc.User, error)
	GetUserByUsername(ctx context.Context, username string) (sqlc.User, error)
	GetUserByEmail(ctx context.Context, email string) (sqlc.User, error)
	GetAdminUser(ctx context.Context) (sqlc.User, error)
	CreateUser(ctx context.Context, arg sqlc.CreateUserParams) (sqlc.User, error)
	UpdateUserProfile(ctx context.Context, arg sqlc.UpdateUserProfileParams) (sqlc.User, error)
}

// Service maps caller references to canonical users and provisions missing ones.
type Service struct {
	store  Store
	logger *slog.Logger
	suffix func() string

	mu    sync.RWMutex
	admin *User
}

func NewService(log *slog.Logger, store Store) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:  store,
		logger: log.With(slog.String("service", "identity")),
		suffix: randomSuffix,
	}
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}

// Resolve looks a reference up by id, then username, then email (both case-insensitive).
func (s *Service) Resolve(ctx context.Context, ref string) (User, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return User{}, ErrNotFound
	}
	if id, err := dbpkg.ParseUUID(ref); err == nil {
		row, err := s.store.GetUserByID(ctx, id)
		if err == nil {
			return toUser(row), nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return User{}, fmt.Errorf("get user by id: %w", err)
		}
	}
	row, err := s.store.GetUserByUsername(ctx, ref)
	if err == nil {
		return toUser(row), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("get user by username: %w", err)
	}
	row, err = s.store.GetUserByEmail(ctx, ref)
	if err == nil {
		return toUser(row), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("get user by email: %w", err)
	}
	return User{}, ErrNotFound
}

// lookup resolves the primary reference of the claims: the ref, else the email,
// else the username.
func (s *Service) lookup(ctx context.Context, claims Claims) (User, error) {
	for _, ref := range []string{claims.Ref, claims.Email, claims.Username} {
		if strings.TrimSpace(ref) != "" {
			return s.Resolve(ctx, ref)
		}
	}
	return User{}, ErrNotFound
}

// Ensure resolves the caller, provisioning a user row when none exists. Existing
// users take over any non-empty claim that differs from what is stored.
func (s *Service) Ensure(ctx context.Context, claims Claims) (User, error) {
	if strings.TrimSpace(claims.Ref) == "" && strings.TrimSpace(claims.Username) == "" && strings.TrimSpace(claims.Email) == "" {
		return User{}, ErrInvalidClaims
	}
	user, err := s.lookup(ctx, claims)
	if err == nil {
		return s.merge(ctx, user, claims, false)
	}
	if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}
	return s.provision(ctx, claims, RoleUser)
}

func (s *Service) provision(ctx context.Context, claims Claims, role Role) (User, error) {
	id := uuid.New()
	if parsed, err := uuid.Parse(strings.TrimSpace(claims.Ref)); err == nil {
		id = parsed
	}
	naming := claims
	for attempt := 0; attempt < MaxProvisionAttempts; attempt++ {
		cand := Candidates(naming, attempt, s.suffix())
		row, err := s.store.CreateUser(ctx, sqlc.CreateUserParams{
			ID:          dbpkg.UUIDFrom(id),
			Email:       dbpkg.Text(cand.Email),
			Username:    dbpkg.Text(cand.Username),
			DisplayName: dbpkg.Text(cand.DisplayName),
			AvatarUrl:   dbpkg.Text(claims.AvatarURL),
			Role:        string(role),
		})
		if err == nil {
			user := toUser(row)
			s.logger.Info("provisioned user", slog.String("user_id", user.ID), slog.String("username", user.Username), slog.Int("attempt", attempt))
			return user, nil
		}
		if !dbpkg.IsUniqueViolation(err) {
			return User{}, fmt.Errorf("create user: %w", err)
		}
		// A concurrent request may have provisioned the same caller.
		if existing, lerr := s.lookup(ctx, claims); lerr == nil {
			return existing, nil
		} else if !errors.Is(lerr, ErrNotFound) {
			return User{}, lerr
		}
		if dbpkg.IsUniqueViolation(err, "users_email_lower_key") && naming.Email != "" {
			// The asserted email belongs to someone else; fall back to a placeholder.
			if naming.Username == "" {
				naming.Username, _, _ = strings.Cut(naming.Email, "@")
			}
			naming.Email = ""
		}
		if dbpkg.IsUniqueViolation(err, "users_pkey") {
			row, gerr := s.store.GetUserByID(ctx, dbpkg.UUIDFrom(id))
			if gerr == nil {
				return toUser(row), nil
			}
		}
		s.logger.Debug("user candidate collided", slog.String("username", cand.Username), slog.Int("attempt", attempt))
	}
	return User{}, ErrProvisionFailed
}

// merge applies the claims to an existing user. Non-empty values replace what is
// stored; empty ones never clear a field. Role upgrades happen only when
// allowAdmin is set.
func (s *Service) merge(ctx context.Context, user User, claims Claims, allowAdmin bool) (User, error) {
	next := user
	set := func(dst *string, value string) {
		if value = strings.TrimSpace(value); value != "" {
			*dst = value
		}
	}
	set(&next.Username, claims.Username)
	set(&next.Email, claims.Email)
	set(&next.DisplayName, claims.DisplayName)
	set(&next.AvatarURL, claims.AvatarURL)
	if allowAdmin {
		next.Role = RoleAdmin
	}
	if next == user {
		return user, nil
	}
	updated, err := s.update(ctx, next)
	if err == nil {
		return updated, nil
	}
	if !dbpkg.IsUniqueViolation(err) || allowAdmin {
		return User{}, err
	}
	// The username or email belongs to another user. Keep the stored ones and
	// still apply the rest of the profile.
	s.logger.Warn("skip identity change, value taken by another user", slog.String("user_id", user.ID), slog.Any("error", err))
	next.Username, next.Email = user.Username, user.Email
	if next == user {
		return user, nil
	}
	updated, err = s.update(ctx, next)
	if err != nil {
		if dbpkg.IsUniqueViolation(err) {
			return user, nil
		}
		return User{}, err
	}
	return updated, nil
}

func (s *Service) update(ctx context.Context, next User) (User, error) {
	id, err := dbpkg.ParseUUID(next.ID)
	if err != nil {
		return User{}, fmt.Errorf("invalid user id: %w", err)
	}
	row, err := s.store.UpdateUserProfile(ctx, sqlc.UpdateUserProfileParams{
		ID:          id,
		Email:       dbpkg.Text(next.Email),
		Username:    dbpkg.Text(next.Username),
		DisplayName: dbpkg.Text(next.DisplayName),
		AvatarUrl:   dbpkg.Text(next.AvatarURL),
		Role:        string(next.Role),
	})
	if err != nil {
		return User{}, fmt.Errorf("update user: %w", err)
	}
	return toUser(row), nil
}

// EnsureAdmin provisions the singleton admin from configuration and caches it.
// An existing user with the configured username is upgraded.
func (s *Service) EnsureAdmin(ctx context.Context, claims Claims) (User, error) {
	if strings.TrimSpace(claims.Username) == "" {
		return User{}, ErrInvalidClaims
	}
	row, err := s.store.GetAdminUser(ctx)
	var admin User
	switch {
	case err == nil:
		admin, err = s.merge(ctx, toUser(row), claims, false)
	case errors.Is(err, pgx.ErrNoRows):
		existing, lerr := s.Resolve(ctx, claims.Username)
		switch {
		case lerr == nil:
			admin, err = s.merge(ctx, existing, claims, true)
		case errors.Is(lerr, ErrNotFound):
			admin, err = s.provision(ctx, claims, RoleAdmin)
			if err == nil && !admin.IsAdmin() {
				admin, err = s.merge(ctx, admin, claims, true)
			}
		default:
			err = lerr
		}
	default:
		err = fmt.Errorf("get admin user: %w", err)
	}
	if err != nil {
		return User{}, err
	}
	s.mu.Lock()
	s.admin = &admin
	s.mu.Unlock()
	s.logger.Info("admin user ready", slog.String("user_id", admin.ID), slog.String("username", admin.Username))
	return admin, nil
}

// Admin returns the singleton admin, loading it once from storage.
func (s *Service) Admin(ctx context.Context) (User, error) {
	s.mu.RLock()
	cached := s.admin
	s.mu.RUnlock()
	if cached != nil {
		return *cached, nil
	}
	row, err := s.store.GetAdminUser(ctx)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrAdminMissing
		}
		return User{}, fmt.Errorf("get admin user: %w", err)
	}
	admin := toUser(row)
	s.mu.Lock()
	s.admin = &admin
	s.mu.Unlock()
	return admin, nil
}

func toUser(row sqlc.User) User {
	role := Role(row.Role)
	if role == "" {
		role = RoleUser
	}
	return User{
		ID:          dbpkg.UUIDToString(row.ID),
		Email:       dbpkg.TextToString(row.Email),
		Username:    dbpkg.TextToString(row.Username),
		DisplayName: dbpkg.TextToString(row.DisplayName),
		AvatarURL:   dbpkg.TextToString(row.AvatarUrl),
		Role:        role,
		CreatedAt:   row.CreatedAt.Time,
	}
}
