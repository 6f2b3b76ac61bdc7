package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	d := New()

	tests := []struct {
		name        string
		body        string
		wantBlocked bool
		wantReason  string
	}{
		{"captcha page", "<html><div class='g-recaptcha'>Please complete the CAPTCHA</div></html>", true, "captcha"},
		{"human check", "<h1>Verify You Are Human</h1>", true, "verify you are human"},
		{"access denied", "<title>Access Denied</title>", true, "access denied"},
		{"first keyword in list order wins", "access denied: solve the captcha", true, "captcha"},
		{"normal listing", "<html><h1>3 bed house in Austin</h1></html>", false, ""},
		{"empty body", "", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := d.Classify(tt.body)
			assert.Equal(t, tt.wantBlocked, v.Blocked)
			assert.Equal(t, tt.wantReason, v.Reason)
		})
	}
}

func TestCustomKeywords(t *testing.T) {
	d := New(" Robot Check ", "")
	assert.Equal(t, []string{"robot check"}, d.Keywords())
	assert.True(t, d.Classify("ROBOT CHECK required").Blocked)
	assert.False(t, d.Classify("captcha").Blocked)
}
