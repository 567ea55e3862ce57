package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAliasCanonical(t *testing.T) {
	table := NewAliasTable()

	tests := []struct {
		name string
		raw  string
		want RoomID
	}{
		{"underscore spelling rewritten", "exchange_42", "exchange-42"},
		{"canonical spelling untouched", "exchange-42", "exchange-42"},
		{"unrelated room untouched", "ex-7", "ex-7"},
		{"prefix only at the front", "room_exchange_1", "room_exchange_1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, table.Canonical(tt.raw))
		})
	}
}

func TestAliasExactBeatsPrefix(t *testing.T) {
	table := NewAliasTable()
	table.AddAlias("exchange_legacy", "exchange-9000")

	assert.Equal(t, RoomID("exchange-9000"), table.Canonical("exchange_legacy"))
	// 其它下划线拼写仍走前缀规则
	assert.Equal(t, RoomID("exchange-1"), table.Canonical("exchange_1"))
}
