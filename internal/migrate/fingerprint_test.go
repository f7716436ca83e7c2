package migrate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalMessageID(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"<abc@example.com>", "abc@example.com"},
		{"ABC@Example.COM", "abc@example.com"},
		{"  <a@b>  ", "a@b"},
		{"< spaced@id >", "spaced@id"},
		{"", ""},
		{"<>", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanonicalMessageID(tc.in), "input %q", tc.in)
	}
}

func TestFingerprintPrefersMessageID(t *testing.T) {
	a := MessageInfo{MessageID: "<X@host>", Size: 100, Date: time.Unix(1000, 0)}
	b := MessageInfo{MessageID: "<x@host>", Size: 999, Date: time.Unix(9999, 0)}

	// Same canonical ID wins regardless of size and date.
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Equal(t, Fingerprint("mid:x@host"), a.Fingerprint())
}

func TestFingerprintIgnoresFlags(t *testing.T) {
	a := MessageInfo{MessageID: "<dup@host>", Flags: []string{"\\Seen", "\\Flagged"}}
	b := MessageInfo{MessageID: "<dup@host>", Flags: nil}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestFingerprintSizeDateFallback(t *testing.T) {
	when := time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)
	a := MessageInfo{Size: 2048, Date: when}
	b := MessageInfo{Size: 2048, Date: when.In(time.FixedZone("X", 3600))}
	c := MessageInfo{Size: 2049, Date: when}
	d := MessageInfo{Size: 2048, Date: when.Add(time.Second)}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint(), "timezone must not matter")
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), d.Fingerprint())
}

func TestMessageIDFingerprintEmpty(t *testing.T) {
	_, ok := MessageIDFingerprint("  <> ")
	assert.False(t, ok)

	fp, ok := MessageIDFingerprint("<ok@host>")
	assert.True(t, ok)
	assert.Equal(t, Fingerprint("mid:ok@host"), fp)
}
