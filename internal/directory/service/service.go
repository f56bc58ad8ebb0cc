// Package service implements the directory operation surface: organizations,
// members, teams, and invitations, with role-gated mutations and
// authorization sync.
package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/tenantry/internal/authz"
	"github.com/louisbranch/tenantry/internal/directory/invitation"
	"github.com/louisbranch/tenantry/internal/directory/member"
	"github.com/louisbranch/tenantry/internal/directory/role"
	"github.com/louisbranch/tenantry/internal/directory/storage"
	apperrors "github.com/louisbranch/tenantry/internal/platform/errors"
	"github.com/louisbranch/tenantry/internal/platform/id"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Service exposes directory operations over a storage backend, mirroring
// role and relation changes into the authorization subsystem after each
// commit.
type Service struct {
	store       storage.Store
	syncer      *authz.Syncer
	clock       func() time.Time
	idGenerator func() (string, error)
	grants      invitation.GrantConfig
	tracer      trace.Tracer
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithClock overrides the wall clock, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithIDGenerator overrides identifier generation, for tests.
func WithIDGenerator(idGenerator func() (string, error)) Option {
	return func(s *Service) {
		s.idGenerator = idGenerator
	}
}

// WithGrantConfig enables signed invitation accept grants.
func WithGrantConfig(cfg invitation.GrantConfig) Option {
	return func(s *Service) {
		s.grants = cfg
	}
}

// NewService creates a directory service backed by the given store and
// authorization syncer.
func NewService(store storage.Store, syncer *authz.Syncer, opts ...Option) *Service {
	s := &Service{
		store:       store,
		syncer:      syncer,
		clock:       time.Now,
		idGenerator: id.NewID,
		tracer:      otel.Tracer("tenantry/directory"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) now() time.Time {
	if s.clock != nil {
		return s.clock().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) newID() (string, error) {
	if s.idGenerator != nil {
		return s.idGenerator()
	}
	return id.NewID()
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name)
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func clampPageSize(pageSize int) int {
	if pageSize <= 0 {
		return defaultPageSize
	}
	if pageSize > maxPageSize {
		return maxPageSize
	}
	return pageSize
}

// requireRole loads the actor's membership and enforces the role hierarchy.
// Non-members and suspended members are rejected.
func (s *Service) requireRole(ctx context.Context, orgID, actorUserID, minRole string) (member.Member, error) {
	actor, err := s.store.GetMember(ctx, orgID, actorUserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return member.Member{}, apperrors.New(apperrors.CodeMemberNotInOrg,
				"caller is not a member of this organization")
		}
		return member.Member{}, err
	}
	if actor.Status == member.StatusSuspended {
		return member.Member{}, apperrors.WithMetadata(apperrors.CodeMemberRoleInsufficient,
			"suspended members cannot perform this action",
			map[string]string{"RequiredRole": minRole})
	}
	if !role.HasAtLeast(actor.Role, minRole) {
		return member.Member{}, apperrors.WithMetadata(apperrors.CodeMemberRoleInsufficient,
			"caller role is below the required role",
			map[string]string{"RequiredRole": minRole})
	}
	return actor, nil
}

// notFound translates a storage miss into the caller-facing error taxonomy.
func notFound(err error, message string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.New(apperrors.CodeNotFound, message)
	}
	return err
}
