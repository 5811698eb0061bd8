// Package minio provides an ObjectStore backed by MinIO or any other
// S3-compatible server (Ceph, Garage, SeaweedFS).
//
// # Basic Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := miniostore.NewStore(client, "kbindex", "support-app/")
//	blob, err := store.Load(ctx, "embeddings_cache")
package minio
