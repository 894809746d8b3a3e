// Package s3 uploads release artifacts to AWS S3 or any S3-compatible
// object store.
//
// The client wraps AWS SDK v2 behind functional options. Custom endpoints
// switch to path-style addressing, and large files are split into
// sequential multipart uploads.
//
// Example usage:
//
//	client, err := s3.New(ctx,
//	    s3.WithEndpoint("https://project.supabase.co/storage/v1/s3"),
//	    s3.WithRegion("us-west-2"),
//	    s3.WithStaticCredentials(keyID, secret),
//	)
//	if err != nil {
//	    return err
//	}
//
//	result, err := client.UploadFile(ctx, "software", "app-1.2.0.zip", "/tmp/app-1.2.0.zip")
package s3
