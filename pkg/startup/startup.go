package startup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type StartupDependency interface {
	GetName() string
	DependsOn() []string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type StartupStatus int

const (
	StartupStatusPending StartupStatus = iota
	StartupStatusStarted
	StartupStatusStopped
	StartupStatusFailed
)

type Startup struct {
	dependencies map[string]StartupDependency
	order        []string
	logger       *zap.Logger
	statuses     map[string]StartupStatus
	attempt      int
	maxAttempts  int
	// backoffUnit scales the Fibonacci wait between attempts.
	backoffUnit time.Duration
}

func NewStartup(logger *zap.Logger, maxAttempts int) *Startup {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Startup{
		logger:       logger,
		dependencies: make(map[string]StartupDependency),
		statuses:     make(map[string]StartupStatus),
		maxAttempts:  maxAttempts,
		backoffUnit:  time.Second,
	}
}

func (s *Startup) AddDependency(dependency StartupDependency) {
	if _, ok := s.dependencies[dependency.GetName()]; !ok {
		s.order = append(s.order, dependency.GetName())
	}
	s.dependencies[dependency.GetName()] = dependency
}

func (s *Startup) Status(name string) StartupStatus {
	return s.statuses[name]
}

func (s *Startup) Start(ctx context.Context) error {
	s.attempt = 0
	var lastErr error

	// Fibonacci backoff sequence
	a, b := 1, 1
	for s.attempt < s.maxAttempts {
		s.attempt++
		s.logger.Info("Beginning startup attempt", zap.Int("attempt", s.attempt))

		success := true
		for _, name := range s.order {
			if err := s.startDependency(ctx, s.dependencies[name]); err != nil {
				s.logger.Error("Startup dependency failed", zap.String("dependency", name), zap.Int("attempt", s.attempt), zap.Error(err))
				lastErr = err
				success = false
				break
			}
		}

		if success {
			return nil
		}

		if s.attempt >= s.maxAttempts {
			return fmt.Errorf("startup failed after %d attempts: %w", s.attempt, lastErr)
		}

		waitTime := time.Duration(a) * s.backoffUnit
		s.logger.Info("Retrying startup", zap.Duration("wait", waitTime), zap.Int("attempt", s.attempt), zap.Int("max_attempts", s.maxAttempts))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}

		a, b = b, a+b
	}

	return nil
}

func (s *Startup) startDependency(ctx context.Context, dependency StartupDependency) error {
	if s.statuses[dependency.GetName()] == StartupStatusStarted {
		return nil
	}

	for _, dependencyName := range dependency.DependsOn() {
		dep, ok := s.dependencies[dependencyName]
		if !ok {
			return fmt.Errorf("dependency %q required by %q is not registered", dependencyName, dependency.GetName())
		}
		if s.statuses[dependencyName] != StartupStatusStarted {
			if err := s.startDependency(ctx, dep); err != nil {
				return err
			}
		}
	}

	s.logger.Info("Starting dependency", zap.String("dependency", dependency.GetName()))
	s.statuses[dependency.GetName()] = StartupStatusPending
	if err := dependency.Start(ctx); err != nil {
		s.statuses[dependency.GetName()] = StartupStatusFailed
		return err
	}
	s.statuses[dependency.GetName()] = StartupStatusStarted
	return nil
}

// Stop stops dependencies in reverse registration order, dependents first.
func (s *Startup) Stop(ctx context.Context) error {
	for i := len(s.order) - 1; i >= 0; i-- {
		dependency := s.dependencies[s.order[i]]
		if s.statuses[dependency.GetName()] != StartupStatusStarted {
			continue
		}
		if err := s.stopDependency(ctx, dependency); err != nil {
			return err
		}
	}
	return nil
}

func (s *Startup) stopDependency(ctx context.Context, dependency StartupDependency) error {
	s.logger.Info("Stopping dependency", zap.String("dependency", dependency.GetName()))
	if err := dependency.Stop(ctx); err != nil {
		s.logger.Error("Failed to stop dependency", zap.String("dependency", dependency.GetName()), zap.Error(err))
		return err
	}
	s.statuses[dependency.GetName()] = StartupStatusStopped
	return nil
}
