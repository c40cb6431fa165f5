package session

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

var codeAdjectives = []string{
	"QUICK", "CALM", "BRAVE", "BRIGHT", "COOL",
	"EAGER", "GENTLE", "GRAND", "GREEN", "BLUE",
	"GOLD", "SILVER", "WARM", "BOLD", "CLEAR",
	"CRISP", "DEEP", "FAST", "FRESH", "HIGH",
	"KIND", "LIGHT", "MILD", "NEAT", "PLAIN",
	"PROUD", "PURE", "SHARP", "SMART", "SOFT",
	"TALL", "TRUE", "VAST", "WIDE", "WISE",
}

var codeNouns = []string{
	"PRISM", "TORUS", "WEDGE", "HELIX", "PLANE",
	"POINT", "FACET", "SOLID", "SHELL", "FRAME",
	"JOINT", "BEAM", "PLATE", "VAULT", "ARCH",
	"TRUSS", "GRID", "MESH", "CURVE", "SPAN",
	"BRACE", "CHORD", "FLOOR", "RIDGE", "SLAB",
	"SPIRE", "TOWER", "DOME", "GABLE", "LEDGE",
}

var codeRNG *rand.Rand

func init() {
	codeRNG = rand.New(rand.NewSource(time.Now().UnixNano()))
}

// GenerateSessionCode creates a memorable session code in
// ADJECTIVE-NOUN-NN format.
func GenerateSessionCode() string {
	adj := codeAdjectives[codeRNG.Intn(len(codeAdjectives))]
	noun := codeNouns[codeRNG.Intn(len(codeNouns))]
	num := codeRNG.Intn(100)
	return fmt.Sprintf("%s-%s-%02d", adj, noun, num)
}

// NormalizeSessionCode ensures consistent formatting (uppercase, trimmed)
func NormalizeSessionCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateSessionCode checks if a session code has valid format
func ValidateSessionCode(code string) bool {
	parts := strings.Split(code, "-")
	if len(parts) != 3 {
		return false
	}
	return len(parts[0]) > 0 && len(parts[1]) > 0 && len(parts[2]) > 0
}

// BlobKey derives the rendezvous blob key for a session code. Every
// client of the session polls and rewrites this one blob.
func BlobKey(code string) string {
	return "coview/sessions/" + NormalizeSessionCode(code) + ".json"
}
