// Package backup archives a database directory and ships the archive to a
// Sink.
//
// Archives are zip files whose entries are compressed with Zstandard
// (zip method 93). The lock file and temporary files are never archived.
// Archive is meant to run while the database holds its maintenance section,
// so the directory is quiescent; DB.SaveAndBackup does exactly that.
//
// Sinks:
//
//	backup.NewFileSink(nil)        local file, written atomically
//	s3.NewSink(client, bucket, p)  Amazon S3 via the multipart uploader
//	minio.NewSink(client, bucket)  MinIO and other S3-compatible stores
package backup
