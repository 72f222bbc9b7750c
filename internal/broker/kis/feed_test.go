package kis

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execRecord(symbol, price, changePct, volume string) string {
	fields := make([]string, execFieldCount)
	for i := range fields {
		fields[i] = "0"
	}
	fields[0] = symbol
	fields[2] = price
	fields[5] = changePct
	fields[13] = volume
	return strings.Join(fields, "^")
}

func TestHandleRealtimeSingleRecord(t *testing.T) {
	f := NewFeed(nil, "")
	msg := "0|H0STCNT0|001|" + execRecord("005930", "71200", "1.35", "125000")
	f.handleRealtime(context.Background(), msg)

	select {
	case tick := <-f.Ticks():
		assert.Equal(t, "005930", tick.Symbol)
		assert.Equal(t, 71200.0, tick.Price)
		assert.InDelta(t, 0.0135, tick.ChangeRate, 1e-9)
		assert.Equal(t, 125000.0, tick.Volume)
	default:
		t.Fatal("expected a tick")
	}
}

func TestHandleRealtimeMultipleRecords(t *testing.T) {
	f := NewFeed(nil, "")
	data := execRecord("005930", "71200", "1.35", "100") + "^" + execRecord("000660", "195000", "-0.50", "200")
	f.handleRealtime(context.Background(), "0|H0STCNT0|002|"+data)

	first := <-f.Ticks()
	second := <-f.Ticks()
	assert.Equal(t, "005930", first.Symbol)
	assert.Equal(t, "000660", second.Symbol)
	assert.Equal(t, 195000.0, second.Price)
}

func TestHandleRealtimeIgnoresOtherStreams(t *testing.T) {
	f := NewFeed(nil, "")
	f.handleRealtime(context.Background(), "0|H0STASP0|001|"+execRecord("005930", "71200", "0", "0"))
	assert.Empty(t, f.ticks)
}

func TestParseTickRejectsBadPrice(t *testing.T) {
	fields := strings.Split(execRecord("005930", "abc", "0", "0"), "^")
	_, ok := parseTick(fields)
	assert.False(t, ok)

	fields = strings.Split(execRecord("005930", "0", "0", "0"), "^")
	_, ok = parseTick(fields)
	assert.False(t, ok)
}

func TestParseTickValid(t *testing.T) {
	fields := strings.Split(execRecord("035720", "48500", "2.10", "9999"), "^")
	tick, ok := parseTick(fields)
	require.True(t, ok)
	assert.Equal(t, "035720", tick.Symbol)
	assert.Equal(t, 48500.0, tick.Price)
}
