// Package sanitizer provides input normalization for user-supplied fields.
//
// All functions are idempotent and handle hostile or malformed input by
// returning empty values rather than errors. Services run sanitization
// before validation so validators see canonical data.
package sanitizer
