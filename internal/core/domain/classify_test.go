package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		msg      string
		conn     bool
		disconn  bool
		wantOK   bool
		wantTrim int
	}{
		{name: "audit prefix", msg: "AUDIT: SESSION,1,1,READ,SELECT", wantOK: true, wantTrim: 7},
		{name: "audit prefix any case", msg: "audit: SESSION,1", wantOK: true, wantTrim: 7},
		{name: "plain message", msg: "checkpoint starting: time", wantTrim: -1},
		{name: "connection disabled", msg: "connection authorized: user=alice", wantTrim: -1},
		{name: "connection enabled", msg: "connection authorized: user=alice database=appdb", conn: true, wantOK: true},
		{name: "auth failure", msg: "password authentication failed for user \"bob\"", conn: true, wantOK: true},
		{name: "replication", msg: "replication connection authorized: user=rep", conn: true, wantOK: true},
		{name: "disconnection disabled", msg: "disconnection: session time: 0:00:01.000", conn: true, wantTrim: -1},
		{name: "disconnection enabled", msg: "disconnection: session time: 0:00:01.000", disconn: true, wantOK: true},
		{name: "short message", msg: "AUD", conn: true, disconn: true, wantTrim: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, trim := Classify(tt.msg, tt.conn, tt.disconn)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantTrim, trim)
		})
	}
}
