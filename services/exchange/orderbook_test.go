package exchange

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleAsks() []Level {
	return []Level{
		{Price: d("0.0001"), Volume: d("100000")},
		{Price: d("0.0002"), Volume: d("100000")},
		{Price: d("0.0004"), Volume: d("100000")},
	}
}

func TestWalkUntilDollars(t *testing.T) {
	cases := []struct {
		name   string
		target string
		want   decimal.Decimal
		err    error
	}{
		{name: "zero target takes best ask", target: "0", want: d("0.0001")},
		{name: "exactly one level", target: "10", want: d("0.0001")},
		{name: "inside second level", target: "25", want: d("0.00015")},
		{name: "exactly two levels", target: "30", want: d("0.00015")},
		{name: "exactly all levels", target: "70", want: d("70").Div(d("300000"))},
		{name: "beyond the book", target: "70.01", err: ErrInsufficientLiquidity},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Walk(sampleAsks(), UntilDollars(d(tc.target)))
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			require.True(t, tc.want.Equal(got), "want %s got %s", tc.want, got)
		})
	}
}

func TestWalkEmptyBook(t *testing.T) {
	_, err := Walk(nil, UntilDollars(decimal.Zero))
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestWalkSkipsEmptyLevels(t *testing.T) {
	asks := []Level{
		{Price: d("0.0001"), Volume: decimal.Zero},
		{Price: d("0.0002"), Volume: d("100")},
	}

	got, err := Walk(asks, UntilDollars(decimal.Zero))
	require.NoError(t, err)
	require.True(t, d("0.0002").Equal(got), "got %s", got)

	_, err = Walk(asks[:1], UntilDollars(decimal.Zero))
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestWalkUntilVolume(t *testing.T) {
	got, err := Walk(sampleAsks(), UntilVolume(d("150000")))
	require.NoError(t, err)
	require.True(t, d("0.00015").Equal(got))

	_, err = Walk(sampleAsks(), UntilVolume(d("300001")))
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestRealizedPrice(t *testing.T) {
	got, err := RealizedPrice([]Fill{
		{Quantity: d("1100"), Fee: d("100"), Price: d("0.0001")},
		{Quantity: d("1000"), Fee: d("0"), Price: d("0.0004")},
	})
	require.NoError(t, err)
	require.True(t, d("0.00025").Equal(got), "got %s", got)

	_, err = RealizedPrice([]Fill{{Quantity: d("10"), Fee: d("10"), Price: d("1")}})
	require.ErrorIs(t, err, ErrNotFilled)

	_, err = RealizedPrice(nil)
	require.ErrorIs(t, err, ErrNotFilled)
}
