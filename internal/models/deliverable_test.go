package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDeliverables(t *testing.T) {
	raw := []byte(`[
		{"kind":"link","url":"https://youtu.be/abc","label":"reel"},
		{"kind":"file","key":"deliveries/app/1/cut.mp4"},
		{"kind":"note","text":"posted at 9am"}
	]`)

	items, err := ParseDeliverables(raw)
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, LinkDeliverable{URL: "https://youtu.be/abc", Label: "reel"}, items[0])
	require.Equal(t, DeliverableFile, items[1].Kind())
	require.Equal(t, NoteDeliverable{Text: "posted at 9am"}, items[2])
}

func TestParseDeliverablesRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"unknown kind":   `[{"kind":"other","text":"x"}]`,
		"relative link":  `[{"kind":"link","url":"/just/a/path"}]`,
		"ftp link":       `[{"kind":"link","url":"ftp://host/file"}]`,
		"empty note":     `[{"kind":"note","text":"   "}]`,
		"file no key":    `[{"kind":"file"}]`,
		"not an array":   `{"kind":"note","text":"x"}`,
		"string encoded": `"[{\"kind\":\"note\"}]"`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDeliverables([]byte(raw))
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidDeliverable), "got %v", err)
		})
	}
}

func TestParseDeliverablesEmpty(t *testing.T) {
	items, err := ParseDeliverables(nil)
	require.NoError(t, err)
	require.Empty(t, items)

	items, err = ParseDeliverables([]byte("null"))
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestMarshalDeliverablesPreservesKinds(t *testing.T) {
	in := []Deliverable{
		LinkDeliverable{URL: "https://example.com/post/1"},
		NoteDeliverable{Text: "caption approved"},
	}
	raw, err := MarshalDeliverables(in)
	require.NoError(t, err)

	out, err := ParseDeliverables(raw)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestFileDescriptorHumanSize(t *testing.T) {
	require.Equal(t, "1.5 MB", FileDescriptor{SizeBytes: 1_500_000}.HumanSize())
	require.Equal(t, "0 B", FileDescriptor{SizeBytes: -4}.HumanSize())
}
