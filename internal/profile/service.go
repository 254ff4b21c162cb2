package profile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/codecoach/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Store persists learning profiles keyed by learner and, optionally, course.
// An empty courseID addresses the learner's overall profile.
type Store interface {
	GetProfile(ctx context.Context, learnerID, courseID string) (*domain.LearningProfile, error)
	PutProfile(ctx context.Context, learnerID, courseID string, p *domain.LearningProfile) error
}

// Result holds the profiles written by Apply.
type Result struct {
	Overall domain.LearningProfile
	Course  *domain.LearningProfile
}

// Service performs read-merge-write against the local store and, when
// configured, the remote profile store. There is no optimistic locking; the
// last write wins.
type Service struct {
	local  Store
	remote Store
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates a profile service. remote may be nil.
func NewService(local, remote Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{local: local, remote: remote, now: time.Now, logger: logger}
}

// Load returns the current profile, preferring the remote store so that
// other devices' merges are seen. A missing profile is returned empty.
func (s *Service) Load(ctx context.Context, learnerID, courseID string) (domain.LearningProfile, error) {
	if s.remote != nil {
		p, err := s.remote.GetProfile(ctx, learnerID, courseID)
		if err == nil && p != nil {
			return *p, nil
		}
		if err != nil {
			s.logger.Warn("Remote profile read failed, using local copy",
				"learner_id", learnerID, "course_id", courseID, "error", err)
		}
	}

	p, err := s.local.GetProfile(ctx, learnerID, courseID)
	if err != nil {
		return domain.LearningProfile{}, fmt.Errorf("load profile: %w", err)
	}
	if p == nil {
		return Empty(s.now()), nil
	}
	return *p, nil
}

// Apply merges partial into the learner's overall profile and, if courseID is
// set, into the per-course profile. The two rows are independent and are
// written concurrently.
func (s *Service) Apply(ctx context.Context, learnerID, courseID string, partial Partial) (*Result, error) {
	res := &Result{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		overall, err := s.applyOne(gctx, learnerID, "", partial)
		if err != nil {
			return err
		}
		res.Overall = overall
		return nil
	})
	if courseID != "" {
		g.Go(func() error {
			course, err := s.applyOne(gctx, learnerID, courseID, partial)
			if err != nil {
				return err
			}
			res.Course = &course
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) applyOne(ctx context.Context, learnerID, courseID string, partial Partial) (domain.LearningProfile, error) {
	current, err := s.Load(ctx, learnerID, courseID)
	if err != nil {
		return domain.LearningProfile{}, err
	}
	merged := Merge(current, partial, s.now())

	if err := s.local.PutProfile(ctx, learnerID, courseID, &merged); err != nil {
		return domain.LearningProfile{}, fmt.Errorf("save profile: %w", err)
	}
	if s.remote != nil {
		if err := s.remote.PutProfile(ctx, learnerID, courseID, &merged); err != nil {
			return domain.LearningProfile{}, fmt.Errorf("upload profile: %w", err)
		}
	}

	s.logger.Info("Learning profile merged",
		"learner_id", learnerID,
		"course_id", courseID,
		"mastered", len(merged.Mastered),
		"developing", len(merged.Developing),
		"topics", len(merged.Topics),
	)
	return merged, nil
}
