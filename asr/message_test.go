package asr

import (
	"encoding/json"
	"testing"
)

func TestServerResultText(t *testing.T) {
	raw := `{"sn":1,"ls":false,"bg":0,"ed":0,"ws":[{"bg":0,"cw":[{"sc":0,"w":"hello"}]},{"bg":0,"cw":[{"sc":0,"w":" world"}]}]}`

	var r serverResult
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := r.text(); got != "hello world" {
		t.Errorf("text = %q, want %q", got, "hello world")
	}
}

func TestTranscriptAppend(t *testing.T) {
	tr := newTranscript()

	tests := []struct {
		name string
		res  serverResult
		want string
	}{
		{"first", serverResult{Sn: 1, Ws: words("hello")}, "hello"},
		{"append", serverResult{Sn: 2, Pgs: "apd", Ws: words(" wor")}, "hello wor"},
		{"append_more", serverResult{Sn: 3, Pgs: "apd", Ws: words("ld")}, "hello world"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tr.apply(&tt.res); got != tt.want {
				t.Errorf("apply = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTranscriptReplace(t *testing.T) {
	tr := newTranscript()

	tr.apply(&serverResult{Sn: 1, Ws: words("helo")})
	tr.apply(&serverResult{Sn: 2, Pgs: "apd", Ws: words(" word")})

	// Replace segments 1..2 with the corrected hypothesis.
	got := tr.apply(&serverResult{Sn: 3, Pgs: "rpl", Rg: []int{1, 2}, Ws: words("hello world")})
	if got != "hello world" {
		t.Errorf("after replace = %q, want %q", got, "hello world")
	}

	// A later append extends the corrected text.
	got = tr.apply(&serverResult{Sn: 4, Pgs: "apd", Ws: words("!")})
	if got != "hello world!" {
		t.Errorf("after append = %q, want %q", got, "hello world!")
	}
}

func TestTranscriptSegmentsJoinInOrder(t *testing.T) {
	tr := newTranscript()

	// Segments applied out of numeric order still join by sn.
	tr.apply(&serverResult{Sn: 2, Ws: words("b")})
	tr.apply(&serverResult{Sn: 1, Ws: words("a")})
	tr.apply(&serverResult{Sn: 3, Ws: words("c")})

	if got := tr.String(); got != "abc" {
		t.Errorf("String = %q, want %q", got, "abc")
	}
}

func TestTranscriptNilResult(t *testing.T) {
	tr := newTranscript()
	tr.apply(&serverResult{Sn: 1, Ws: words("x")})
	if got := tr.apply(nil); got != "x" {
		t.Errorf("apply(nil) = %q, want %q", got, "x")
	}
}

func TestFirstFrameShape(t *testing.T) {
	frame := clientFrame{
		Common:   &commonParams{AppID: "app-1"},
		Business: &businessParams{Language: "zh_cn", Domain: "iat", Accent: "mandarin", Dwa: "wpgs"},
		Data:     frameData{Status: statusFirst, Format: audioFormat, Encoding: "raw", Audio: "AAAA"},
	}

	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := m["common"]; !ok {
		t.Error("first frame missing common section")
	}
	if _, ok := m["business"]; !ok {
		t.Error("first frame missing business section")
	}

	dataSec, _ := m["data"].(map[string]any)
	if dataSec["format"] != audioFormat {
		t.Errorf("format = %v, want %q", dataSec["format"], audioFormat)
	}
}

func TestMidFrameOmitsConfig(t *testing.T) {
	frame := clientFrame{
		Data: frameData{Status: statusMid, Format: audioFormat, Encoding: "raw", Audio: "AAAA"},
	}

	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := m["common"]; ok {
		t.Error("mid frame must not carry common section")
	}
	if _, ok := m["business"]; ok {
		t.Error("mid frame must not carry business section")
	}
}

func words(s string) []resultWord {
	return []resultWord{{Cw: []resultCandidate{{W: s}}}}
}

func TestIsAuthCode(t *testing.T) {
	for _, code := range []int{10105, 10107, 10313, 11200, 11201} {
		if !isAuthCode(code) {
			t.Errorf("isAuthCode(%d) = false, want true", code)
		}
	}
	for _, code := range []int{0, 10114, 10700} {
		if isAuthCode(code) {
			t.Errorf("isAuthCode(%d) = true, want false", code)
		}
	}
}
