// Package identity resolves bearer tokens to authenticated identities via
// an OpenID Connect provider, and provisions or removes identity records
// through the provider's admin API for the compensating user workflows.
package identity
