/*
Package coreerr defines the error taxonomy used across quorumvault's core:
Precondition, Capacity, Gate, Leadership, Durability, Transport and Fatal
kinds, as described by the specification's error-handling design.

Every core component returns a *coreerr.Error (or wraps one via %w) instead
of a bare string so callers can switch on its Kind (KindOf, Retryable) to
decide whether a failure is retry-safe. Like pkg/types, this package is
built on the standard library alone rather than a corpus dependency: no example repo in
the retrieved pack carries a typed-error-kind package to ground this on,
and the retryability switch the Coordinator needs cannot be expressed with
flattened fmt.Errorf strings.
*/
package coreerr
