package logfields

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringHelpers(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  string
		got  func() (string, string)
	}{
		{"ScanStatus", KeyScanStatus, "running", func() (string, string) { a := ScanStatus("running"); return a.Key, a.Value.String() }},
		{"SourceURL", KeySourceURL, "https://ex.com/a/", func() (string, string) { a := SourceURL("https://ex.com/a/"); return a.Key, a.Value.String() }},
		{"URL", KeyURL, "https://ex.com/b", func() (string, string) { a := URL("https://ex.com/b"); return a.Key, a.Value.String() }},
		{"LinkClass", KeyLinkClass, "external", func() (string, string) { a := LinkClass("external"); return a.Key, a.Value.String() }},
		{"Schedule", KeySchedule, "0 3 * * *", func() (string, string) { a := Schedule("0 3 * * *"); return a.Key, a.Value.String() }},
		{"Component", KeyComponent, "scan", func() (string, string) { a := Component("scan"); return a.Key, a.Value.String() }},
		{"Fingerprint", KeyFingerprint, "ab12", func() (string, string) { a := Fingerprint("ab12"); return a.Key, a.Value.String() }},
	}
	for _, tc := range cases {
		k, v := tc.got()
		// Key drift would break log ingestion schemas.
		assert.Equal(t, tc.key, k, tc.name)
		assert.Equal(t, tc.val, v, tc.name)
	}
}

func TestNumericHelpers(t *testing.T) {
	assert.Equal(t, KeyScanID, ScanID(7).Key)
	assert.Equal(t, int64(7), ScanID(7).Value.Int64())
	assert.Equal(t, KeyStatus, Status(404).Key)
	assert.Equal(t, KeyDurationMS, DurationMS(1.5).Key)
	assert.Equal(t, KeyBroken, Broken(2).Key)
}

func TestErrorHelper(t *testing.T) {
	assert.Equal(t, "", Error(nil).Value.String())
	assert.Equal(t, "boom", Error(errors.New("boom")).Value.String())
}
