// Package jobstore holds shared pieces of the jobs.Repository backends.
//
// Backends live in subpackages:
//
//	memory  - process-local map, for tests and single-instance services
//	file    - one directory per job with an atomically written job.json
//	sqlite  - SQLite database via modernc.org/sqlite
//	mongo   - MongoDB collection
//	s3      - one JSON object per job in an S3 bucket
package jobstore
