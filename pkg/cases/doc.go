// Package cases manages arbitration cases and their status lifecycle.
package cases
