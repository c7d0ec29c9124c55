package pfs

import "errors"

// Sentinel error kinds. The builder's tree, configuration, I/O and layout
// errors wrap exactly one of these via fmt.Errorf("...: %w", ErrXxx), so
// callers can branch on the failure class with errors.Is without parsing
// message text. Errors from pfscrypto while setting up or applying XTS
// encryption are wrapped as they are and match none of these.
var (
	// ErrInvalidTree means the input FSNode tree violates a structural
	// invariant: a cycle, a missing parent link, or two children of one
	// directory sharing a name.
	ErrInvalidTree = errors.New("pfs: invalid filesystem tree")

	// ErrConfigMismatch means Sign or Encrypt was requested without the
	// EKPFS key material both of them require.
	ErrConfigMismatch = errors.New("pfs: configuration mismatch")

	// ErrIoFailure wraps an error returned by a file content producer or
	// by the image sink.
	ErrIoFailure = errors.New("pfs: i/o failure")

	// ErrLayoutOverflow means a node needs more indirection than the
	// planner supports, or the image has grown too large for a
	// fixed-offset structure (such as the header's inode-block
	// signature area) to address.
	ErrLayoutOverflow = errors.New("pfs: layout overflow")
)
