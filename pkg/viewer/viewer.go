// Package viewer defines the interface to the host 3D viewer. coview
// never renders anything itself; it queries and drives a viewer through
// this interface and treats every call as a black-box asynchronous
// operation that may fail transiently.
package viewer

import "context"

// CameraMode tags the projection a pose was captured under.
type CameraMode string

const (
	ModePerspective  CameraMode = "perspective"
	ModeOrthographic CameraMode = "orthographic"
)

// Pose is a camera position/target pair plus its projection mode.
type Pose struct {
	Position [3]float64 `json:"position"`
	Target   [3]float64 `json:"target"`
	Mode     CameraMode `json:"mode"`
}

// PathID is an opaque identifier for a piece of model geometry.
type PathID string

// Viewer is the host 3D viewer consumed by the session layer.
type Viewer interface {
	// CurrentCamera returns the viewer's camera pose.
	CurrentCamera(ctx context.Context) (Pose, error)

	// MoveCamera moves the viewer's camera to the given pose.
	MoveCamera(ctx context.Context, pose Pose) error

	// SwitchPerspective toggles between perspective and orthographic
	// projection.
	SwitchPerspective(ctx context.Context) error

	// CurrentSelection returns the paths currently selected.
	CurrentSelection(ctx context.Context) ([]PathID, error)

	// PathTriangles resolves a path to its triangle vertices as a flat
	// list of xyz triplets.
	PathTriangles(ctx context.Context, path PathID) ([]float32, error)

	// ReplaceOverlayMesh replaces the overlay mesh with the given id.
	ReplaceOverlayMesh(ctx context.Context, id string, vertices []float32, colors []uint8) error
}
