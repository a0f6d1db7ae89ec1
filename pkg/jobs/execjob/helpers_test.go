package execjob

import "github.com/3leaps/edison/pkg/jobstore/memory"

func newMemRepo() *memory.Store { return memory.New() }
