// Package faculty manages faculty presence state for the ConsultEase core.
//
// The Synchronizer is the single write path for faculty status. It
// serializes concurrent updates per faculty, commits transitions with a
// version bump inside an immediate transaction, verifies the commit with an
// independent read, and publishes sequenced retained notifications so kiosks
// and late subscribers converge on the current state.
//
// The Controller translates desk unit wire messages (several payload
// generations) into Synchronizer calls. The Registry is a read-through cache
// for query paths, invalidated on every committed transition.
package faculty
