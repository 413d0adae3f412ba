package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnixMillisScan(t *testing.T) {
	at := time.Date(2026, time.March, 3, 12, 30, 0, 0, time.UTC)

	var m UnixMillis
	require.NoError(t, m.Scan(at.UnixMilli()))
	assert.True(t, m.Valid)
	assert.True(t, m.Time.Equal(at))

	require.NoError(t, m.Scan([]byte("1700000000000")))
	assert.Equal(t, int64(1700000000000), m.Time.UnixMilli())

	require.NoError(t, m.Scan(nil))
	assert.False(t, m.Valid)

	v, err := m.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	assert.Error(t, m.Scan(3.5))
}

func TestIntListRoundTrip(t *testing.T) {
	l := IntList{0, 5, 6}
	v, err := l.Value()
	require.NoError(t, err)
	assert.Equal(t, "0,5,6", v)

	var back IntList
	require.NoError(t, back.Scan(v))
	assert.Equal(t, l, back)
	assert.True(t, back.Contains(6))
	assert.False(t, back.Contains(1))

	var empty IntList
	require.NoError(t, empty.Scan(""))
	assert.Empty(t, empty)
}

func TestStringListIgnoresBlanks(t *testing.T) {
	var l StringList
	require.NoError(t, l.Scan([]byte(" vip, ,student ")))
	assert.Equal(t, StringList{"vip", "student"}, l)
}

func TestExtrasCouponLine(t *testing.T) {
	extras := Extras{
		{Code: "delivery", Kind: ExtraFee, Amount: decimal.RequireFromString("2.50"), Chargeable: true},
		{Code: "WELCOME5", Kind: ExtraCoupon, Amount: decimal.RequireFromString("-5")},
	}
	line, ok := extras.CouponLine()
	require.True(t, ok)
	assert.Equal(t, "WELCOME5", line.Code)

	v, err := extras.Value()
	require.NoError(t, err)

	var back Extras
	require.NoError(t, back.Scan(v))
	require.Len(t, back, 2)
	assert.True(t, back[0].Amount.Equal(decimal.RequireFromString("2.5")))
}
