// Package s3 provides an ObjectStore backed by AWS S3.
//
// Credentials and region come from the standard AWS configuration chain
// (environment, shared config files, instance roles):
//
//	store, err := s3.Open(ctx, s3.Config{Bucket: "kb-artifacts", Prefix: "support-app/"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = store.Save(ctx, "knowledgebase_encoded", blob)
package s3
