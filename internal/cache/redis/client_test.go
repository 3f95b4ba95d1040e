package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyCarriesKeyspacePrefix(t *testing.T) {
	c := &Client{keyspace: defaultKeyspace}
	assert.Equal(t, "predictr:odds:market-1", c.key("odds", "market-1"))
	assert.Equal(t, "predictr:lock:trade:user-1:market-1", c.key("lock", "trade:user-1:market-1"))

	custom := &Client{keyspace: "staging"}
	assert.Equal(t, "staging:odds:market-1", custom.key("odds", "market-1"))
}
