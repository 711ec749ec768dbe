// Package privileged provides the fixed set of privileged host operations the
// orchestrator is allowed to perform.
//
// Ownership boundary:
// - helper process execution (chroot-realpath, mount, systemctl)
//
// - classification of helper failures: missing helper vs helper-reported error
//
// Components depend on the narrow interfaces they need so tests can swap in a
// fake implementation instead of crossing real subprocess boundaries.
package privileged
