package faculty

import "errors"

// Sentinel errors for faculty operations.
//
// These can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, faculty.ErrFacultyNotFound) {
//	    // No such faculty; nothing was written
//	}
var (
	// ErrFacultyNotFound indicates the requested faculty does not exist.
	// Status mutations fail with this error before any state is created.
	ErrFacultyNotFound = errors.New("faculty: not found")

	// ErrFacultyExists indicates a create collided with an existing id.
	ErrFacultyExists = errors.New("faculty: already exists")

	// ErrNoLegacyTarget indicates a legacy status message could not be
	// attributed to any faculty (none has a BLE beacon configured).
	ErrNoLegacyTarget = errors.New("faculty: no faculty with BLE beacon configured")
)
