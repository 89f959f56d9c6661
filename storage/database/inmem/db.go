package inmemdb

import (
	"sync"

	"github.com/trezcool/ukaguzi/core/inspection"
)

type (
	// DB keeps the pending submissions in memory; they are lost on restart.
	DB struct {
		pending *pendingTable
	}

	pendingTable struct {
		mutex sync.RWMutex
		table map[string]inspection.PendingSubmission
	}
)

func Open() *DB {
	return &DB{
		pending: &pendingTable{table: make(map[string]inspection.PendingSubmission)},
	}
}
