package snapshot

import (
	"bytes"
	"testing"
)

func TestSanitizeSVG(t *testing.T) {
	in := []byte(`<path style="fill: #fff;stroke: 000000;stop-color: #abc"/>`)
	want := []byte(`<path style="fill:#fff;stroke:#000000;stop-color:#abc"/>`)
	if got := sanitizeSVG(in); !bytes.Equal(got, want) {
		t.Errorf("got %s, want %s", got, want)
	}

	clean := []byte(`<circle fill="#f8f8f5"/>`)
	if got := sanitizeSVG(clean); !bytes.Equal(got, clean) {
		t.Errorf("clean input changed: %s", got)
	}
}
