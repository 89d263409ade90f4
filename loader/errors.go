package loader

import (
	"errors"

	"github.com/simukka/toybox/view"
)

// unknownToyError signals a slug missing from the catalog.
type unknownToyError struct{ slug string }

func (e unknownToyError) Error() string { return "unknown toy: " + e.slug }

// ErrUnknownToy returns an error for a slug that is not in the catalog.
func ErrUnknownToy(slug string) error { return unknownToyError{slug: slug} }

// IsUnknownToy reports whether err is an unknown-slug failure.
func IsUnknownToy(err error) bool {
	var e unknownToyError
	return errors.As(err, &e)
}

// capabilityBlockedError signals that the environment cannot run the toy.
type capabilityBlockedError struct {
	slug   string
	reason string
}

func (e capabilityBlockedError) Error() string {
	return "toy " + e.slug + " blocked: " + e.reason
}

// ErrCapabilityBlocked returns an error for a toy the environment cannot render.
func ErrCapabilityBlocked(slug, reason string) error {
	return capabilityBlockedError{slug: slug, reason: reason}
}

// IsCapabilityBlocked reports whether err is a capability gate failure.
func IsCapabilityBlocked(err error) bool {
	var e capabilityBlockedError
	return errors.As(err, &e)
}

// resolveError means the module reference could not be turned into a URL.
type resolveError struct {
	slug string
	err  error
}

func (e resolveError) Error() string { return "resolve " + e.slug + ": " + e.err.Error() }
func (e resolveError) Unwrap() error { return e.err }

// ErrResolve wraps a module path resolution failure.
func ErrResolve(slug string, err error) error { return resolveError{slug: slug, err: err} }

// IsResolve reports whether err is a module resolution failure.
func IsResolve(err error) bool {
	var e resolveError
	return errors.As(err, &e)
}

// importError means the module was found but failed to load.
type importError struct {
	slug string
	url  string
	hint view.ImportHint
	err  error
}

func (e importError) Error() string {
	return "import " + e.slug + " from " + e.url + " (" + string(e.hint) + "): " + e.err.Error()
}
func (e importError) Unwrap() error { return e.err }

// ErrImport wraps a dynamic import failure with its diagnostic hint.
func ErrImport(slug, url string, hint view.ImportHint, err error) error {
	return importError{slug: slug, url: url, hint: hint, err: err}
}

// IsImport reports whether err is a dynamic import failure.
func IsImport(err error) bool {
	var e importError
	return errors.As(err, &e)
}

// ImportHintOf returns the hint carried by an import failure.
func ImportHintOf(err error) (view.ImportHint, bool) {
	var e importError
	if !errors.As(err, &e) {
		return "", false
	}
	return e.hint, true
}

// missingStartError means the module has no start export.
type missingStartError struct {
	slug string
	url  string
}

func (e missingStartError) Error() string {
	return "module " + e.url + " for " + e.slug + " does not export start"
}

// ErrMissingStart returns an error for a module without a start function.
func ErrMissingStart(slug, url string) error { return missingStartError{slug: slug, url: url} }

// IsMissingStart reports whether err is a missing start export.
func IsMissingStart(err error) bool {
	var e missingStartError
	return errors.As(err, &e)
}

// startError means the toy's start function itself failed.
type startError struct {
	slug string
	err  error
}

func (e startError) Error() string { return "start " + e.slug + ": " + e.err.Error() }
func (e startError) Unwrap() error { return e.err }

// ErrStart wraps a failure returned or thrown by a toy's start function.
func ErrStart(slug string, err error) error { return startError{slug: slug, err: err} }

// IsStart reports whether err came from a toy's start function.
func IsStart(err error) bool {
	var e startError
	return errors.As(err, &e)
}
