// Package landmark decodes face-landmark feeds into asd frames.
//
// Two wire shapes are accepted per face: named landmarks
// ({"nose-tip": [x, y], "mouth-0": [x, y], ...}) or a raw MediaPipe
// FaceMesh point array, from which the nose tip and the eight mouth points
// are picked by index. Frames travel as JSON lines or as a msgpack stream.
package landmark

import (
	"math"

	"github.com/haivivi/voxlock/pkg/asd"
)

// FaceMesh indices read from a raw point array.
const NoseTipIndex = 0

// MouthIndices are the FaceMesh points averaged into the mouth aperture,
// in role order mouth-0 … mouth-7.
var MouthIndices = [8]int{13, 14, 15, 16, 17, 18, 19, 20}

// FromFaceMesh picks the scorer's roles out of a FaceMesh point array.
// Each point is [x, y] or [x, y, z]. Points that are missing or malformed
// are left out, and scoring reports them as missing roles.
func FromFaceMesh(points [][]float64) asd.Landmarks {
	l := make(asd.Landmarks, len(asd.RequiredRoles))
	if p, ok := meshPoint(points, NoseTipIndex); ok {
		l[asd.RoleNoseTip] = p
	}
	for i, idx := range MouthIndices {
		if p, ok := meshPoint(points, idx); ok {
			l[asd.MouthRoles[i]] = p
		}
	}
	return l
}

func meshPoint(points [][]float64, idx int) (asd.Point, bool) {
	if idx >= len(points) || len(points[idx]) < 2 {
		return asd.Point{}, false
	}
	x, y := points[idx][0], points[idx][1]
	if math.IsNaN(x) || math.IsNaN(y) {
		return asd.Point{}, false
	}
	return asd.Point{X: x, Y: y}, true
}

// ToFaceMesh lays l out as a point array long enough to hold every index
// FromFaceMesh reads. Unused slots are [0, 0].
func ToFaceMesh(l asd.Landmarks) [][]float64 {
	n := MouthIndices[len(MouthIndices)-1] + 1
	points := make([][]float64, n)
	for i := range points {
		points[i] = []float64{0, 0}
	}
	if p, ok := l[asd.RoleNoseTip]; ok {
		points[NoseTipIndex] = []float64{p.X, p.Y}
	}
	for i, idx := range MouthIndices {
		if p, ok := l[asd.MouthRoles[i]]; ok {
			points[idx] = []float64{p.X, p.Y}
		}
	}
	return points
}
