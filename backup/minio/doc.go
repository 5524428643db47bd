// Package minio stores database backups in MinIO or any other
// S3-compatible object store (Ceph, Garage, SeaweedFS).
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//
//	sink := miniobackup.NewSink(client, "backups", "linkdb/")
//	err = db.SaveAndBackupTo(ctx, sink, "2026-10-17.zip")
package minio
