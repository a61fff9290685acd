package datefmt

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	ts := time.Date(2024, time.March, 5, 7, 9, 3, 42*int(time.Millisecond), time.UTC)

	cases := []struct {
		pattern string
		want    string
	}{
		{"yyyy-MM-dd", "2024-03-05"},
		{"yy/M/d", "24/3/5"},
		{"yyyy-MM-dd_HH-mm-ss.SSS", "2024-03-05_07-09-03.042"},
		{"MMM", "Mar"},
		{"MMMM", "March"},
		{"EE", "Tue"},
		{"EEEE", "Tuesday"},
		{"hh a", "07 AM"},
		{"kk", "07"},
		{"yyyy-ww", "2024-10"},
		{"u", "2"},
		{"DDD", "065"},
		{"'day'dd''", "day05'"},
		{"yyyy'T'HH", "2024T07"},
	}

	for _, tc := range cases {
		t.Run(tc.pattern, func(t *testing.T) {
			l, err := Compile(tc.pattern)
			require.NoError(t, err)
			assert.Equal(t, tc.want, l.Format(ts))
		})
	}
}

func TestMidnightAndNoonHours(t *testing.T) {
	midnight := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	noon := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "12", MustCompile("hh").Format(midnight))
	assert.Equal(t, "24", MustCompile("kk").Format(midnight))
	assert.Equal(t, "00", MustCompile("KK").Format(noon))
	assert.Equal(t, "PM", MustCompile("a").Format(noon))
}

func TestRegexMatchesFormat(t *testing.T) {
	patterns := []string{"yyyy-MM-dd", "yyyy-MM-dd_HH", "yyyyMMdd", "MMM-EE", "yy.ww", "hh a", "yyyy-MM-dd'T'HH-mm Z"}
	start := time.Date(2023, 12, 25, 0, 0, 0, 0, time.UTC)

	for _, p := range patterns {
		l := MustCompile(p)
		re := regexp.MustCompile("^" + l.Regex() + "$")
		for i := 0; i < 400; i++ {
			ts := start.Add(time.Duration(i) * 7 * time.Hour)
			s := l.Format(ts)
			assert.Truef(t, re.MatchString(s), "pattern %s: %q not matched by %s", p, s, re)
		}
	}
}

func TestCompileErrors(t *testing.T) {
	for _, p := range []string{"", "  ", "yyyy-'MM", "yyyy-qq", "G"} {
		_, err := Compile(p)
		assert.Errorf(t, err, "pattern %q", p)
	}
}
