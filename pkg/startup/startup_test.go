package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDependency struct {
	name      string
	dependsOn []string
	failures  int
	started   *[]string
	stopped   *[]string
}

func (f *fakeDependency) GetName() string     { return f.name }
func (f *fakeDependency) DependsOn() []string { return f.dependsOn }

func (f *fakeDependency) Start(ctx context.Context) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("not ready")
	}
	*f.started = append(*f.started, f.name)
	return nil
}

func (f *fakeDependency) Stop(ctx context.Context) error {
	*f.stopped = append(*f.stopped, f.name)
	return nil
}

func TestStartup_DependencyOrder(t *testing.T) {
	var started, stopped []string
	s := NewStartup(zap.NewNop(), 1)
	s.AddDependency(&fakeDependency{name: "server", dependsOn: []string{"database"}, started: &started, stopped: &stopped})
	s.AddDependency(&fakeDependency{name: "database", started: &started, stopped: &stopped})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"database", "server"}, started)
	assert.Equal(t, StartupStatusStarted, s.Status("server"))

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"database", "server"}, stopped)
	assert.Equal(t, StartupStatusStopped, s.Status("database"))
}

func TestStartup_RetriesUntilReady(t *testing.T) {
	var started, stopped []string
	s := NewStartup(zap.NewNop(), 3)
	s.backoffUnit = time.Millisecond
	s.AddDependency(&fakeDependency{name: "kafka", failures: 2, started: &started, stopped: &stopped})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"kafka"}, started)
}

func TestStartup_GivesUp(t *testing.T) {
	var started, stopped []string
	s := NewStartup(zap.NewNop(), 2)
	s.backoffUnit = time.Millisecond
	s.AddDependency(&fakeDependency{name: "kafka", failures: 5, started: &started, stopped: &stopped})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, StartupStatusFailed, s.Status("kafka"))
}

func TestStartup_UnknownDependency(t *testing.T) {
	var started, stopped []string
	s := NewStartup(zap.NewNop(), 1)
	s.AddDependency(&fakeDependency{name: "server", dependsOn: []string{"missing"}, started: &started, stopped: &stopped})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}
