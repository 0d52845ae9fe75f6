// Package institutions manages arbitration institutions, their member
// listings and arbitrator/client assignments.
package institutions
