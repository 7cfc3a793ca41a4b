package tokenstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloseAll(t *testing.T) {
	var order []string
	errFirst := errors.New("cache close failed")

	closers := []func() error{
		func() error { order = append(order, "db"); return errors.New("db close failed") },
		func() error { order = append(order, "cache"); return errFirst },
	}

	err := closeAll(closers)
	assert.ErrorIs(t, err, errFirst)
	assert.Equal(t, []string{"cache", "db"}, order)
	assert.NoError(t, closeAll(nil))
}
