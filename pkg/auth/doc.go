// Package auth defines the principal and role model shared across the service.
//
// Role is a closed enumeration with a single canonical casing (lowercase).
// All role comparisons must go through NormalizeRole; raw strings from the
// database or from requests are never compared directly.
package auth
