package app

import (
	"context"
	"sync"

	"github.com/ayusman/fingertip/internal/detector"
)

// MockPoseSource plays back pre-recorded poses for testing. A nil entry is a
// frame where the hand is not tracked.
type MockPoseSource struct {
	mu    sync.Mutex
	poses []*detector.Pose
	index int
	loop  bool
	done  chan struct{}
}

// NewMockPoseSource creates a source over poses. Without loop, every read
// after the last pose reports an untracked hand.
func NewMockPoseSource(poses []*detector.Pose, loop bool) *MockPoseSource {
	return &MockPoseSource{
		poses: poses,
		loop:  loop,
		done:  make(chan struct{}),
	}
}

// Pose implements PoseSource.
func (m *MockPoseSource) Pose(ctx context.Context) (detector.Pose, bool, error) {
	if err := ctx.Err(); err != nil {
		return detector.Pose{}, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.index >= len(m.poses) {
		if !m.loop || len(m.poses) == 0 {
			m.finish()
			return detector.Pose{}, false, nil
		}
		m.index = 0
	}

	p := m.poses[m.index]
	m.index++
	if p == nil {
		return detector.Pose{}, false, nil
	}
	return *p, true, nil
}

// Done is closed once a non-looping source has been read past its end.
func (m *MockPoseSource) Done() <-chan struct{} {
	return m.done
}

// SetPoses replaces the pose sequence and rewinds.
func (m *MockPoseSource) SetPoses(poses []*detector.Pose) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.poses = poses
	m.index = 0
}

func (m *MockPoseSource) finish() {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
}
