// Package storage provides the object-store abstraction backing document
// uploads and downloads, with an S3-compatible implementation carrying
// separate service and caller credential scopes for presigned URLs.
package storage
