package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"unitysales/backend/internal/cache"
	"unitysales/backend/internal/domain"
	"unitysales/backend/internal/expiry"
	"unitysales/backend/internal/logging"
	"unitysales/backend/internal/metrics"
	"unitysales/backend/internal/store"
	"unitysales/backend/internal/xid"
)

var ErrForbidden = errors.New("admin role required")

// sharedLoadTimeout bounds a cache fill that no longer follows its caller.
const sharedLoadTimeout = 5 * time.Second

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Cache          cache.Cache
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	NearExpiryDays int
}

type Service struct {
	repo       store.Repository
	cache      cache.Cache
	metrics    *metrics.Metrics
	logger     *slog.Logger
	classifier expiry.Classifier
	validate   *validator.Validate
	group      singleflight.Group
	now        func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Cache == nil {
		opts.Cache = cache.Noop{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Service{
		repo:       repo,
		cache:      opts.Cache,
		metrics:    opts.Metrics,
		logger:     opts.Logger.With("component", "service"),
		classifier: expiry.NewClassifier(opts.NearExpiryDays),
		validate:   validate,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

// checkStruct runs the validator tags of v and reports the first failure as a
// *store.ValidationError.
func (s *Service) checkStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return store.Invalid("", err.Error())
	}
	fe := fieldErrs[0]
	field := strings.SplitN(fe.Namespace(), ".", 2)
	name := fe.Field()
	if len(field) == 2 {
		name = field[1]
	}
	return store.Invalid(name, describeTag(fe))
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must have at least " + fe.Param() + " entries"
	case "gte":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "datetime":
		return "must use the " + fe.Param() + " layout"
	}
	return "is invalid (" + fe.Tag() + ")"
}

// readThrough serves dest from the versioned cache. Concurrent callers with
// the same key share one load, which is detached from any single caller's
// cancellation. A cache outage degrades to a direct load.
func (s *Service) readThrough(ctx context.Context, dest any, load cache.Loader, parts ...string) error {
	key, err := s.cache.BuildKey(ctx, parts...)
	if err != nil {
		s.logger.Warn("cache key unavailable, loading directly", slog.Any("error", err))
		return loadInto(ctx, dest, load)
	}

	flight := s.group.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLoadTimeout)
		defer cancel()

		var loadErr error
		tracked := func(ctx context.Context) (any, error) {
			v, err := load(ctx)
			loadErr = err
			return v, err
		}
		var msg json.RawMessage
		err := s.cache.FetchJSON(ctx, key, &msg, tracked)
		if err == nil {
			return []byte(msg), nil
		}
		if loadErr != nil {
			return nil, loadErr
		}
		s.logger.Warn("cache read failed, loading directly", slog.String("key", key), slog.Any("error", err))
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return payload, nil
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-flight:
		if res.Err != nil {
			return res.Err
		}
		return json.Unmarshal(res.Val.([]byte), dest)
	}
}

func loadInto(ctx context.Context, dest any, load cache.Loader) error {
	v, err := load(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, dest)
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("cache bump failed", slog.Any("error", err))
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New(),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.logger.Warn("failed to write audit log",
			slog.String("action", action),
			slog.String("entity", fmt.Sprintf("%s/%s", entityType, entityID)),
			slog.Any("error", err),
		)
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, limit)
}
