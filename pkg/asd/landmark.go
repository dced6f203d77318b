package asd

import (
	"errors"
	"fmt"
	"math"
)

// Role names one landmark of a face.
type Role string

const (
	RoleNoseTip Role = "nose-tip"
	RoleMouth0  Role = "mouth-0"
	RoleMouth1  Role = "mouth-1"
	RoleMouth2  Role = "mouth-2"
	RoleMouth3  Role = "mouth-3"
	RoleMouth4  Role = "mouth-4"
	RoleMouth5  Role = "mouth-5"
	RoleMouth6  Role = "mouth-6"
	RoleMouth7  Role = "mouth-7"
)

// MouthRoles lists the eight mouth landmarks averaged into the aperture.
var MouthRoles = [8]Role{
	RoleMouth0, RoleMouth1, RoleMouth2, RoleMouth3,
	RoleMouth4, RoleMouth5, RoleMouth6, RoleMouth7,
}

// RequiredRoles lists every role the scorer reads.
var RequiredRoles = append([]Role{RoleNoseTip}, MouthRoles[:]...)

// Point is a landmark position normalized to the frame, x and y in [0, 1].
type Point struct {
	X float64 `json:"x" yaml:"x" msgpack:"x"`
	Y float64 `json:"y" yaml:"y" msgpack:"y"`
}

func (p Point) valid() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Landmarks maps roles to points for one face in one frame.
type Landmarks map[Role]Point

// ErrMissingLandmarkRole is matched by every *MissingLandmarkRoleError.
var ErrMissingLandmarkRole = errors.New("asd: missing landmark role")

// MissingLandmarkRoleError reports a face whose landmark set lacks a role
// (or holds a non-finite coordinate for it). The face is skipped for the
// frame; other faces are unaffected.
type MissingLandmarkRoleError struct {
	ID   CandidateID
	Role Role
}

func (e *MissingLandmarkRoleError) Error() string {
	return fmt.Sprintf("asd: candidate %d: missing landmark role %q", e.ID, e.Role)
}

func (e *MissingLandmarkRoleError) Unwrap() error { return ErrMissingLandmarkRole }

// point returns the landmark for role, or a MissingLandmarkRoleError.
func (l Landmarks) point(id CandidateID, role Role) (Point, error) {
	p, ok := l[role]
	if !ok || !p.valid() {
		return Point{}, &MissingLandmarkRoleError{ID: id, Role: role}
	}
	return p, nil
}

// Aperture returns the mean y of the mouth landmarks.
func (l Landmarks) Aperture(id CandidateID) (float64, error) {
	var sum float64
	for _, r := range MouthRoles {
		p, err := l.point(id, r)
		if err != nil {
			return 0, err
		}
		sum += p.Y
	}
	return sum / float64(len(MouthRoles)), nil
}

// NoseTip returns the nose-tip landmark.
func (l Landmarks) NoseTip(id CandidateID) (Point, error) {
	return l.point(id, RoleNoseTip)
}

// Validate checks that every required role is present and finite.
func (l Landmarks) Validate(id CandidateID) error {
	for _, r := range RequiredRoles {
		if _, err := l.point(id, r); err != nil {
			return err
		}
	}
	return nil
}
