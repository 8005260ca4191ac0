package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "just text", "just text"},
		{"inline tags join words", "<b>bold</b>ly <i>go</i>", "boldly go"},
		{"block tags separate words", "<p>one</p><p>two</p>", "one two"},
		{"breaks", "line<br>line<br/>line", "line line line"},
		{"entities", "Tom &amp; Jerry &lt;3", "Tom & Jerry <3"},
		{"scripts dropped", "a<script>alert(1)</script>b", "ab"},
		{"whitespace collapsed", "  a \n\t b  ", "a b"},
		{"images", `<img src="x.png">caption`, "caption"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlainText(tt.in))
		})
	}
}

func TestCombinedText(t *testing.T) {
	assert.Equal(t, "Name\n\nShort\n\nLong text", CombinedText("Name", "Short", "<p>Long text</p>"))
	assert.Equal(t, "Name\n\nLong", CombinedText("Name", "  ", "Long"))
	assert.Equal(t, "Name", CombinedText("Name", "", ""))
	assert.Empty(t, CombinedText("", "", "<br>"))
}
