package session

import (
	"context"
	"log"

	"github.com/tomaslejdung/coview/pkg/viewer"
)

// Router applies messages received from the presenter to the host viewer.
// It runs on the follower side only.
type Router struct {
	viewer viewer.Viewer
}

// NewRouter creates a router driving the given viewer.
func NewRouter(v viewer.Viewer) *Router {
	return &Router{viewer: v}
}

// HandleRaw processes one raw data-channel payload. Control-marker
// messages and unrecognized shapes are dropped; they never fail the
// channel.
func (r *Router) HandleRaw(ctx context.Context, data []byte) {
	msg, err := DecodeMessage(data)
	if err != nil {
		log.Printf("Router: dropping malformed message: %v", err)
		return
	}
	if msg == nil {
		return // keep-alive
	}

	switch msg.Type {
	case MessageCameraPosition:
		r.applyCamera(ctx, msg)
	case MessageSelectionPaths:
		r.applySelection(ctx, msg)
	default:
		log.Printf("Router: dropping unknown message type %q", msg.Type)
	}
}

func (r *Router) applyCamera(ctx context.Context, msg *Message) {
	if msg.Camera == nil {
		log.Printf("Router: cameraPosition message without camera, dropped")
		return
	}

	current, err := r.viewer.CurrentCamera(ctx)
	if err != nil {
		log.Printf("Router: camera query failed: %v", err)
		return
	}

	// Match the presenter's projection before moving, otherwise the pose
	// lands in the wrong projection space.
	if current.Mode != msg.Camera.Mode {
		if err := r.viewer.SwitchPerspective(ctx); err != nil {
			log.Printf("Router: perspective switch failed: %v", err)
			return
		}
	}

	if err := r.viewer.MoveCamera(ctx, *msg.Camera); err != nil {
		log.Printf("Router: camera move failed: %v", err)
	}
}

func (r *Router) applySelection(ctx context.Context, msg *Message) {
	buffers := make([][]float32, 0, len(msg.Paths))
	for _, path := range msg.Paths {
		triangles, err := r.viewer.PathTriangles(ctx, path)
		if err != nil {
			log.Printf("Router: resolving path %s failed: %v", path, err)
			continue
		}
		buffers = append(buffers, triangles)
	}

	vertices, colors := viewer.BuildOverlay(buffers)
	if err := r.viewer.ReplaceOverlayMesh(ctx, viewer.SelectionOverlayID, vertices, colors); err != nil {
		log.Printf("Router: overlay replace failed: %v", err)
	}
}
