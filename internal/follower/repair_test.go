package follower

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/lavalog/internal/logline"
)

func TestMarkerRepairer(t *testing.T) {
	tests := []struct {
		name      string
		lines     []logline.LogLine
		wantTexts []string
		recovered []string
		pending   bool
	}{
		{
			name:      "plain lines untouched",
			lines:     []logline.LogLine{target("a"), target("b")},
			wantTexts: []string{"a", "b"},
		},
		{
			name:      "opening half held",
			lines:     []logline.LogLine{target(openingHalf)},
			wantTexts: []string{""},
			pending:   true,
		},
		{
			name:      "continuation merged",
			lines:     []logline.LogLine{target(openingHalf), target(continuation)},
			wantTexts: []string{"", openingHalf + "\r" + continuation},
		},
		{
			name:      "bare escape continuation merged",
			lines:     []logline.LogLine{target("\x1b[0Ksection_end:100:abc"), target("\x1b[0K")},
			wantTexts: []string{"", "\x1b[0Ksection_end:100:abc\r\x1b[0K"},
		},
		{
			name:      "unrelated line recovers held half",
			lines:     []logline.LogLine{target(openingHalf), target("noise")},
			wantTexts: []string{"", "noise"},
			recovered: []string{openingHalf},
		},
		{
			name:      "complete marker is not held",
			lines:     []logline.LogLine{target(openingHalf + "\r\x1b[0KHeader")},
			wantTexts: []string{openingHalf + "\r\x1b[0KHeader"},
		},
		{
			name:      "kernel dump drains held half",
			lines:     []logline.LogLine{target(openingHalf), logline.NewDump("x")},
			wantTexts: []string{"", ""},
			recovered: []string{openingHalf},
		},
		{
			name:      "continuation without opening half untouched",
			lines:     []logline.LogLine{target(continuation)},
			wantTexts: []string{continuation},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r MarkerRepairer
			var texts, recovered []string

			for _, line := range tt.lines {
				if held, ok := r.Process(&line); ok {
					recovered = append(recovered, held)
				}
				texts = append(texts, line.Text())
			}

			assert.Equal(t, tt.wantTexts, texts)
			assert.Equal(t, tt.recovered, recovered)
			assert.Equal(t, tt.pending, r.Pending())
		})
	}
}

func TestMarkerRepairer_EscapePrefixedLineMerges(t *testing.T) {
	var r MarkerRepairer

	first := target(openingHalf)
	_, ok := r.Process(&first)
	assert.False(t, ok)

	second := logline.New(logline.LevelTarget, "\x1b[0Ksection_start:101:def")
	// An escape-prefixed line is a continuation, so it merges rather than
	// recovering.
	_, ok = r.Process(&second)
	assert.False(t, ok)
	assert.Equal(t, openingHalf+"\r\x1b[0Ksection_start:101:def", second.Text())
	assert.False(t, r.Pending())
}

func TestMarkerRepairer_Drain(t *testing.T) {
	var r MarkerRepairer

	_, ok := r.Drain()
	assert.False(t, ok)

	line := target(openingHalf)
	r.Process(&line)

	held, ok := r.Drain()
	assert.True(t, ok)
	assert.Equal(t, openingHalf, held)

	_, ok = r.Drain()
	assert.False(t, ok, "drain is idempotent")
	assert.False(t, r.Pending())
}
