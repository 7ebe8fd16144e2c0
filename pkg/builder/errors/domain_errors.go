package errors

import (
	"errors"
	"fmt"
)

// Domain enumerates the possible error domains
type Domain string

const (
	DomainManifest Domain = "manifest"
	DomainBuild    Domain = "build"
	DomainFetch    Domain = "fetch"
	DomainCache    Domain = "cache"
	DomainRegistry Domain = "registry"
	DomainRuntime  Domain = "runtime"
)

// Code enumerates possible error codes for each domain
type Code string

// Manifest error codes
const (
	CodeManifestNotFound Code = "manifest_not_found"
	CodeInvalidManifest  Code = "invalid_manifest"
	CodeInvalidPlan      Code = "invalid_plan"
)

// Build error codes
const (
	CodeStepFailed       Code = "step_failed"
	CodeBuildCancelled   Code = "build_cancelled"
	CodeContextUnusable  Code = "context_unusable"
	CodeDepsManifestGone Code = "deps_manifest_missing"
)

// Fetch error codes
const (
	CodeBaseUnresolved       Code = "base_unresolved"
	CodePackageUnresolved    Code = "package_unresolved"
	CodeDependencyUnresolved Code = "dependency_unresolved"
	CodeBrowserUnsupported   Code = "browser_unsupported"
	CodeBrowserUnreachable   Code = "browser_unreachable"
)

// Cache error codes
const (
	CodeCacheMiss    Code = "cache_miss"
	CodeCacheCorrupt Code = "cache_corrupt"
)

// Registry error codes
const (
	CodeImageNotFound Code = "image_not_found"
	CodeTagNotFound   Code = "tag_not_found"
	CodeRegistryError Code = "registry_error"
)

// Runtime error codes
const (
	CodeInstanceFailed    Code = "instance_failed"
	CodeEntrypointMissing Code = "entrypoint_missing"
)

// DomainError represents a domain-specific error.
type DomainError struct {
	// The error domain (manifest, build, cache, etc.)
	ErrDomain Domain

	// Error code unique within the domain
	ErrCode Code

	// Human-readable error message
	Message string

	// Optional fields for context
	Step    string
	Image   string
	Details map[string]interface{}

	// Original error that caused this one, if any
	Cause error
}

// Error returns the error message.
func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s:%s] %s", e.ErrDomain, e.ErrCode, e.Message)

	if e.Step != "" {
		msg = fmt.Sprintf("%s (step: %s)", msg, e.Step)
	}
	if e.Image != "" {
		msg = fmt.Sprintf("%s (image: %s)", msg, e.Image)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}

	return msg
}

// Unwrap returns the cause of this error
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches DomainErrors by domain and code, so errors.Is works against
// the sentinel values below even after context is attached.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.ErrDomain == t.ErrDomain && e.ErrCode == t.ErrCode
}

// New creates a new DomainError.
func New(domain Domain, code Code, message string) *DomainError {
	return &DomainError{
		ErrDomain: domain,
		ErrCode:   code,
		Message:   message,
	}
}

// WithStep returns a copy with step context attached. The receiver is
// left untouched so the shared sentinels stay clean.
func (e *DomainError) WithStep(step string) *DomainError {
	clone := *e
	clone.Step = step
	return &clone
}

// WithImage returns a copy with image context attached.
func (e *DomainError) WithImage(image string) *DomainError {
	clone := *e
	clone.Image = image
	return &clone
}

// WithCause returns a copy with the causing error attached.
func (e *DomainError) WithCause(cause error) *DomainError {
	clone := *e
	clone.Cause = cause
	return &clone
}

// WithDetails returns a copy with additional context details.
func (e *DomainError) WithDetails(details map[string]interface{}) *DomainError {
	clone := *e
	clone.Details = details
	return &clone
}

// Wrap wraps an error with domain context.
func Wrap(domain Domain, code Code, message string, err error) *DomainError {
	return &DomainError{
		ErrDomain: domain,
		ErrCode:   code,
		Message:   message,
		Cause:     err,
	}
}

// Is checks if an error is a DomainError with the specified domain and code.
func Is(err error, domain Domain, code Code) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.ErrDomain == domain && de.ErrCode == code
	}
	return false
}

// Common build errors
var (
	ErrBuildCancelled  = New(DomainBuild, CodeBuildCancelled, "Build cancelled")
	ErrInvalidPlan     = New(DomainManifest, CodeInvalidPlan, "Invalid provisioning plan")
	ErrImageNotFound   = New(DomainRegistry, CodeImageNotFound, "Image not found")
	ErrInstanceFailed  = New(DomainRuntime, CodeInstanceFailed, "Instance failed to start")
	ErrBrowserPlatform = New(DomainFetch, CodeBrowserUnsupported, "No browser build for this platform")
)
