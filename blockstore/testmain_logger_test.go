package blockstore_test

import (
	"os"
	"testing"

	"github.com/bitmark-inc/logger"
)

// TestMain initialises the shared logger package once per test binary so
// dblog.New (which wraps logger.New) does not panic with "Initialise was
// not called".
func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "blockstore-log")
	if err != nil {
		panic(err)
	}

	if err := logger.Initialise(logger.Configuration{
		Directory: dir,
		File:      "test.log",
		Size:      1048576,
		Count:     10,
	}); err != nil {
		panic(err)
	}

	code := m.Run()

	logger.Finalise()
	os.RemoveAll(dir)
	os.Exit(code)
}
