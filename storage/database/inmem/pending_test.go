package inmemdb

import (
	"testing"

	"github.com/trezcool/ukaguzi/tests"
)

func TestPendingRepository(t *testing.T) {
	testutil.TestPendingRepository(t, NewPendingRepository(Open()))
}
