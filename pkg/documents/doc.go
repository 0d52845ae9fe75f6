// Package documents manages case document metadata and the file transfer
// pipeline: direct uploads with retry, the presigned fallback ladder,
// time-boxed signed downloads and owner-only deletion.
package documents
