// Package simplemedia provides the core of a media catalogue: user
// registration and token issuance, content records backed by objects in blob
// storage, and resolution of time-limited delivery URLs.
//
// The three services (AuthService, ContentService, DeliveryResolver) are
// composed from pluggable repositories and a Gateway over a BlobStore.
// Implementations of repositories (memory, Postgres) and blob stores (memory,
// filesystem, S3, MinIO) live under subpackages.
//
// Write Ordering
//
// A content record references an object only after that object has been
// written, and a record is removed before its objects are. Objects left
// behind by a failed compensation are reported to an OrphanRecorder so they
// can be collected out of band (see the reconcile subpackage).
package simplemedia
