// Package asd picks the active speaker among several visible faces.
//
// # Pipeline
//
// Every video frame goes through three stages:
//
//  1. Tracker.Observe: landmarks + microphone energy → per-face Activity
//  2. Selector.Update: per-face scores → optional SpeakerChangeEvent
//  3. Mapper.ConfigFor: active face id → FilterConfig for the audio effect
//
// Engine wires the three stages together for one stream and pushes the
// resulting FilterConfig into an Effect.
//
// # Scoring
//
// The activity score of a face is a weighted sum of three signals:
//
//	score = Lip·lipVelocity + Audio·energy + Bias·positionalBias
//
// lipVelocity is the absolute change of the mouth aperture (mean y of
// the eight mouth landmarks) divided by the frame interval. energy is the
// shared microphone level in [0, 1]. positionalBias favours faces near the
// horizontal center of the frame.
//
// The microphone is shared by every face, so the energy term moves all
// scores together; only lip motion and position discriminate between faces.
//
// # Identity
//
// CandidateID is the face's index in the landmark feed. It is not a
// re-identified person: when faces swap detection order, ids swap too.
//
// # Concurrency
//
// Tracker, Selector and Engine belong to a single stream and are not safe
// for concurrent use. Run one Engine per stream.
package asd
