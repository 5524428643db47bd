// Package s3 stores database backups in Amazon S3.
//
// # Usage
//
//	sink, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("backups/"),
//	    s3.WithRegion("eu-central-1"),
//	)
//
//	err = db.SaveAndBackupTo(ctx, sink, "2026-10-17.zip")
//
// Archives are streamed through the multipart uploader, so the archive
// never has to fit in memory. A Catalog backed by DynamoDB can record
// every uploaded archive under a monotonically increasing version:
//
//	catalog := s3.NewCatalog(dynamodb.NewFromConfig(cfg), "linkdb-backups", "s3://my-bucket/backups/")
//	sink, err := s3.New(ctx, "my-bucket", s3.WithCatalog(catalog))
//
// Table schema:
//   - Partition key: location (string)
//   - Sort key: version (number)
package s3
