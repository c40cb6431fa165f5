package viewer

// SelectionOverlayID is the fixed id of the overlay mesh that mirrors the
// presenter's selection. Replacing it repeatedly updates the highlight in
// place.
const SelectionOverlayID = "coview-selection-overlay"

// SelectionTint is the RGBA color applied to every highlighted vertex.
var SelectionTint = [4]uint8{0xFF, 0x8C, 0x1A, 0xB0}

// BuildOverlay concatenates triangle buffers into a single vertex buffer
// and synthesizes a per-vertex color buffer with the selection tint.
func BuildOverlay(triangleBuffers [][]float32) (vertices []float32, colors []uint8) {
	total := 0
	for _, buf := range triangleBuffers {
		total += len(buf)
	}

	vertices = make([]float32, 0, total)
	for _, buf := range triangleBuffers {
		vertices = append(vertices, buf...)
	}

	// One RGBA tuple per vertex (three floats each).
	colors = make([]uint8, 0, (len(vertices)/3)*4)
	for i := 0; i < len(vertices)/3; i++ {
		colors = append(colors, SelectionTint[0], SelectionTint[1], SelectionTint[2], SelectionTint[3])
	}
	return vertices, colors
}
