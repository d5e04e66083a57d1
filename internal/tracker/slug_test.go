package tracker_test

import (
	"testing"

	"github.com/kiranshivaraju/jobtracker/internal/tracker"
	"github.com/stretchr/testify/assert"
)

func TestKebabAndSentenceCase(t *testing.T) {
	tests := []struct {
		in       string
		kebab    string
		sentence string
	}{
		{in: "Nightly Import", kebab: "nightly-import", sentence: "Nightly import"},
		{in: "nightly_import", kebab: "nightly-import", sentence: "Nightly import"},
		{in: "nightlyImport", kebab: "nightly-import", sentence: "Nightly import"},
		{in: "  sync--users!! ", kebab: "sync-users", sentence: "Sync users"},
		{in: "HTTPServerRestart", kebab: "http-server-restart", sentence: "Http server restart"},
		{in: "v2Import", kebab: "v2-import", sentence: "V2 import"},
		{in: "Ünïcode Jöb", kebab: "ünïcode-jöb", sentence: "Ünïcode jöb"},
		{in: "---", kebab: "", sentence: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.kebab, tracker.KebabCase(tt.in))
			assert.Equal(t, tt.sentence, tracker.SentenceCase(tt.in))
		})
	}
}

func TestKebabCase_Idempotent(t *testing.T) {
	for _, in := range []string{"Nightly Import", "a_b_c", "fooBarBaz"} {
		once := tracker.KebabCase(in)
		assert.Equal(t, once, tracker.KebabCase(once))
	}
}
