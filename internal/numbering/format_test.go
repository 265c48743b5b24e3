package numbering

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPeriodFor(t *testing.T) {
	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	require.Equal(t, "", PeriodFor(ResetNever, at))
	require.Equal(t, "2026", PeriodFor(ResetYearly, at))
	require.Equal(t, "202608", PeriodFor(ResetMonthly, at))
}

func TestFormat(t *testing.T) {
	cases := []struct {
		name   string
		cfg    Config
		seq    int64
		period string
		want   string
	}{
		{
			name: "internal with prefix and suffix",
			cfg:  Config{Prefix: "PO", Suffix: "HQ", Separator: "-", Digits: 6},
			seq:  42, want: "PO-000042-HQ",
		},
		{
			name: "empty parts collapse",
			cfg:  Config{Separator: "-", Digits: 4},
			seq:  7, want: "0007",
		},
		{
			name: "no separator",
			cfg:  Config{Prefix: "INV", Digits: 5},
			seq:  123, want: "INV00123",
		},
		{
			name:   "fiscal yearly carries the period",
			cfg:    Config{Prefix: "PO", Separator: "-", Digits: 4, Fiscal: true, ResetRule: ResetYearly},
			seq:    15,
			period: "2026",
			want:   "PO-0015-2026",
		},
		{
			name:   "fiscal monthly carries year and month",
			cfg:    Config{Prefix: "DR", Separator: "/", Digits: 4, Fiscal: true, ResetRule: ResetMonthly},
			seq:    3,
			period: "202608",
			want:   "DR/0003/202608",
		},
		{
			name: "width is padded even past digits",
			cfg:  Config{Digits: 3},
			seq:  12345, want: "12345",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Format(tc.cfg, tc.seq, tc.period))
		})
	}
}
