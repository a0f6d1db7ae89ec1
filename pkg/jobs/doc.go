// Package jobs runs background jobs in-process and tracks their lifecycle.
//
// A job is one execution of a registered Runnable. The Service creates a
// Record for it, persists the record through a Repository, and hands it to
// the Runner on an Executor. The caller receives the record's URI before the
// job body has finished.
//
// Lifecycle:
//
//	RUNNING --(success)--> STOPPED / OK
//	RUNNING --(failure)--> STOPPED / ERROR
//	RUNNING --(no updates past max age, see cleanup.StopDeadJobs)--> STOPPED / DEAD
//
// Mutex groups provide advisory exclusion between job types: the check reads
// the repository's running jobs without taking a lock, so two instances may
// still race.
package jobs
