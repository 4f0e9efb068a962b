package store_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"landregistry/internal/registry/store"
)

func TestInMemoryLedgerSuite(t *testing.T) {
	suite.Run(t, &LedgerSuite{
		newLedger: func() store.Ledger { return store.NewInMemoryLedger() },
	})
}
