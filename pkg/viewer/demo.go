package viewer

import (
	"context"
	"math"
	"sync"
	"time"
)

// DemoViewer is a self-contained Viewer used by the coview binary when no
// host viewer is attached. As presenter it orbits the camera around the
// origin so followers have something to watch; as follower it records
// whatever it is told so the TUI can display it.
type DemoViewer struct {
	mu        sync.Mutex
	pose      Pose
	selection []PathID
	overlay   struct {
		id       string
		vertices []float32
		colors   []uint8
	}
	orbiting bool
	start    time.Time
}

// NewDemoViewer creates a demo viewer with the camera at a fixed pose.
func NewDemoViewer() *DemoViewer {
	return &DemoViewer{
		pose: Pose{
			Position: [3]float64{10, 10, 10},
			Target:   [3]float64{0, 0, 0},
			Mode:     ModePerspective,
		},
		start: time.Now(),
	}
}

// SetOrbiting toggles the synthetic camera orbit.
func (v *DemoViewer) SetOrbiting(on bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.orbiting = on
}

// SetSelection replaces the demo selection.
func (v *DemoViewer) SetSelection(paths []PathID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selection = append([]PathID(nil), paths...)
}

func (v *DemoViewer) CurrentCamera(ctx context.Context) (Pose, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.orbiting {
		angle := time.Since(v.start).Seconds() * 0.5
		radius := 14.0
		v.pose.Position = [3]float64{
			radius * math.Cos(angle),
			8,
			radius * math.Sin(angle),
		}
	}
	return v.pose, nil
}

func (v *DemoViewer) MoveCamera(ctx context.Context, pose Pose) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pose = pose
	return nil
}

func (v *DemoViewer) SwitchPerspective(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.pose.Mode == ModePerspective {
		v.pose.Mode = ModeOrthographic
	} else {
		v.pose.Mode = ModePerspective
	}
	return nil
}

func (v *DemoViewer) CurrentSelection(ctx context.Context) ([]PathID, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]PathID(nil), v.selection...), nil
}

// PathTriangles returns a unit triangle per path; enough to exercise the
// overlay pipeline without real geometry.
func (v *DemoViewer) PathTriangles(ctx context.Context, path PathID) ([]float32, error) {
	return []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}, nil
}

func (v *DemoViewer) ReplaceOverlayMesh(ctx context.Context, id string, vertices []float32, colors []uint8) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.overlay.id = id
	v.overlay.vertices = append([]float32(nil), vertices...)
	v.overlay.colors = append([]uint8(nil), colors...)
	return nil
}

// Pose returns the current camera pose without animating it.
func (v *DemoViewer) Pose() Pose {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pose
}

// OverlayVertexCount returns how many vertices the last overlay carried.
func (v *DemoViewer) OverlayVertexCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.overlay.vertices) / 3
}
