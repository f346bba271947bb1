package restore

import "errors"

// Failure sentinels, one per pipeline stage that can abort the restore.
// Stage errors wrap these so callers can match with errors.Is while still
// seeing the underlying collaborator's diagnostic text.
var (
	ErrMissingArchiveMember      = errors.New("missing archive member")
	ErrAmbiguousFilestoreLayout  = errors.New("ambiguous filestore layout")
	ErrDataDirectoryUnresolvable = errors.New("data directory unresolvable")
	ErrFilestoreDeployFailure    = errors.New("filestore deployment failure")
	ErrProvisioningFailure       = errors.New("provisioning failure")
	ErrExtensionCreationFailure  = errors.New("extension creation failure")
	ErrSqlRestoreFailure         = errors.New("sql restore failure")
	ErrSequenceCleanupFailure    = errors.New("sequence cleanup failure")
)
