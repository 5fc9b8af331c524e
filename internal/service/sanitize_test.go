package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "  final cut  ", "final cut"},
		{"tags stripped", "needs better <b>lighting</b>", "needs better lighting"},
		{"encoded tag stripped", "&lt;img src=x onerror=alert(1)&gt;", ""},
		{"encoded script stripped", "intro &lt;script&gt;alert(1)&lt;/script&gt; outro", "intro  outro"},
		{"ampersand stays escaped", "Tom & Jerry", "Tom &amp; Jerry"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := cleanText(tc.in)
			require.Equal(t, tc.want, got)
			require.NotContains(t, got, "<")
		})
	}
}

func TestCleanFileName(t *testing.T) {
	require.Equal(t, "spot.mp4", cleanFileName("spot.mp4"))
	require.Equal(t, "passwd", cleanFileName("../../etc/passwd"))
	require.Equal(t, "my_clip_1_.mov", cleanFileName(`C:\Users\me\my clip(1).mov`))
	require.Equal(t, "file", cleanFileName("..."))
}
