package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSelectStrategyBoundaries(t *testing.T) {
	th := DefaultThresholds()

	cases := []struct {
		name     string
		size     int64
		textLike bool
		want     UploadStrategy
	}{
		{"small text", 49_999, true, StrategyInline},
		{"at inline boundary", 51_200, true, StrategyInline},
		{"just above inline", 51_201, true, StrategySnippet},
		{"small binary skips inline", 1_000, false, StrategySnippet},
		{"below snippet boundary", 1_048_575, true, StrategySnippet},
		{"at snippet boundary", 1 << 20, true, StrategySnippet},
		{"just above snippet", 1_048_577, true, StrategyStandard},
		{"below standard boundary", 104_857_599, false, StrategyStandard},
		{"at standard boundary", 100 << 20, false, StrategyStandard},
		{"just above standard", 104_857_601, false, StrategyElevated},
		{"below elevated boundary", 1_073_741_823, false, StrategyElevated},
		{"at elevated boundary", 1 << 30, false, StrategyElevated},
		{"just above elevated", 1_073_741_825, false, StrategyLinkOnly},
	}
	for _, tc := range cases {
		if got := SelectStrategy(tc.size, tc.textLike, th); got != tc.want {
			t.Fatalf("%s (size=%d): got %s, want %s", tc.name, tc.size, got, tc.want)
		}
	}
}

func TestIsTextLike(t *testing.T) {
	if !isTextLike("notes.md", nil) {
		t.Fatal("known text extension should qualify without content")
	}
	if !isTextLike("data.bin", []byte("plain utf-8 prose, nothing binary about it")) {
		t.Fatal("text content should qualify despite the extension")
	}
	if isTextLike("image.png", []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0}) {
		t.Fatal("png magic should not qualify as text")
	}
	if isTextLike("empty.xyz", nil) {
		t.Fatal("empty unknown file should not qualify")
	}
}

// uploadHarness routes the three protocol endpoints through one transport.
type uploadHarness struct {
	getURLStatus   int
	putStatus      int
	completeStatus int

	getURLCalls   int
	putCalls      int
	completeCalls int
	messages      []string
}

func (h *uploadHarness) roundTrip(r *http.Request) (*http.Response, error) {
	switch {
	case strings.Contains(r.URL.Path, "files.getUploadURLExternal"):
		h.getURLCalls++
		if h.getURLStatus != 0 {
			return jsonResponse(h.getURLStatus, "error", nil), nil
		}
		return jsonResponse(200, `{"ok":true,"upload_url":"https://example.invalid/put/abc","file_id":"F123"}`, nil), nil
	case r.Method == http.MethodPut:
		h.putCalls++
		if h.putStatus != 0 {
			return jsonResponse(h.putStatus, "storage error", nil), nil
		}
		return jsonResponse(200, "OK", nil), nil
	case strings.Contains(r.URL.Path, "files.completeUploadExternal"):
		h.completeCalls++
		if h.completeStatus != 0 {
			return jsonResponse(h.completeStatus, "error", nil), nil
		}
		return jsonResponse(200, `{"ok":true,"files":[{"id":"F123","title":"t"}]}`, nil), nil
	case strings.Contains(r.URL.Path, "chat.postMessage"):
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Text string `json:"text"`
		}
		_ = json.Unmarshal(body, &req)
		h.messages = append(h.messages, req.Text)
		return jsonResponse(200, `{"ok":true,"channel":"C1","ts":"1.2"}`, nil), nil
	default:
		return jsonResponse(404, "not found", nil), nil
	}
}

func newTestUploader(t *testing.T, h *uploadHarness) *Uploader {
	t.Helper()
	d := newTestDispatcher(t, h.roundTrip)
	return NewUploader(NewClient(d, nil), Thresholds{}, nil)
}

func TestUploadInline(t *testing.T) {
	h := &uploadHarness{}
	u := newTestUploader(t, h)

	res, err := u.Upload(context.Background(), UploadRequest{
		Filename: "notes.txt",
		Content:  []byte("hello world"),
		Channel:  "C1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Strategy != StrategyInline {
		t.Fatalf("got strategy %s", res.Strategy)
	}
	if len(h.messages) != 1 || !strings.Contains(h.messages[0], "hello world") {
		t.Fatalf("content not inlined: %v", h.messages)
	}
	if res.Receipt == nil || res.Receipt.TS != "1.2" {
		t.Fatalf("missing receipt: %+v", res.Receipt)
	}
	if res.Digest == "" {
		t.Fatal("digest not set")
	}
}

func TestUploadSnippetLanguage(t *testing.T) {
	h := &uploadHarness{}
	u := newTestUploader(t, h)

	content := bytes.Repeat([]byte("print('x')\n"), 6000) // past the inline tier
	res, err := u.Upload(context.Background(), UploadRequest{Filename: "script.py", Content: content, Channel: "C1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Strategy != StrategySnippet {
		t.Fatalf("got strategy %s", res.Strategy)
	}
	if len(h.messages) != 1 || !strings.Contains(h.messages[0], "```python") {
		t.Fatal("snippet should carry the language fence")
	}
	if !strings.Contains(h.messages[0], "truncated") {
		t.Fatal("oversized snippet body should note truncation")
	}
}

func TestUploadSnippetTruncationKeepsRuneBoundary(t *testing.T) {
	h := &uploadHarness{}
	d := newTestDispatcher(t, h.roundTrip)
	// An odd inline limit lands mid-rune in a stream of two-byte characters.
	u := NewUploader(NewClient(d, nil), Thresholds{
		InlineMax: 11, SnippetMax: 1 << 20, StandardMax: 100 << 20, ElevatedMax: 1 << 30,
	}, nil)

	content := strings.Repeat("é", 8) // 16 bytes
	res, err := u.Upload(context.Background(), UploadRequest{Filename: "accents.txt", Content: []byte(content), Channel: "C1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Strategy != StrategySnippet {
		t.Fatalf("got strategy %s", res.Strategy)
	}
	if len(h.messages) != 1 {
		t.Fatalf("messages %v", h.messages)
	}
	if !utf8.ValidString(h.messages[0]) {
		t.Fatal("truncation split a multi-byte character")
	}
	if !strings.Contains(h.messages[0], strings.Repeat("é", 5)) {
		t.Fatal("truncated body lost intact leading characters")
	}
}

func TestUploadThreePhase(t *testing.T) {
	h := &uploadHarness{}
	u := newTestUploader(t, h)

	content := bytes.Repeat([]byte{0xff}, int(DefaultThresholds().SnippetMax)+1)
	res, err := u.Upload(context.Background(), UploadRequest{Filename: "blob.bin", Content: content, Channel: "C1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Strategy != StrategyStandard {
		t.Fatalf("got strategy %s", res.Strategy)
	}
	if h.getURLCalls != 1 || h.putCalls != 1 || h.completeCalls != 1 {
		t.Fatalf("phase calls: %d/%d/%d", h.getURLCalls, h.putCalls, h.completeCalls)
	}
	if res.FileID != "F123" {
		t.Fatalf("file id %q", res.FileID)
	}
}

func TestUploadTransferFailureStopsProtocol(t *testing.T) {
	h := &uploadHarness{putStatus: 500}
	u := newTestUploader(t, h)

	content := bytes.Repeat([]byte{0xff}, int(DefaultThresholds().SnippetMax)+1)
	_, err := u.Upload(context.Background(), UploadRequest{Filename: "blob.bin", Content: content, Channel: "C1"})

	apiErr, ok := AsAPIError(err)
	if !ok || apiErr.Kind != KindUploadPhase || apiErr.Phase != "transfer" {
		t.Fatalf("expected transfer phase failure, got %v", err)
	}
	if h.completeCalls != 0 {
		t.Fatal("completion must not run after a failed transfer")
	}
}

func TestUploadElevatedTierNeedsUserToken(t *testing.T) {
	creds, err := NewCredentialStore("xoxb-test", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	h := &uploadHarness{}
	d := NewDispatcher(creds, DispatcherOptions{Transport: roundTripperFunc(h.roundTrip), Sleep: noSleep})
	u := NewUploader(NewClient(d, nil), Thresholds{
		InlineMax: 8, SnippetMax: 16, StandardMax: 32, ElevatedMax: 64,
	}, nil)

	_, err = u.Upload(context.Background(), UploadRequest{
		Filename: "big.bin",
		Content:  bytes.Repeat([]byte{0xff}, 48),
		Channel:  "C1",
	})
	if KindOf(err) != KindMissingCredential {
		t.Fatalf("expected missing credential, got %v", err)
	}
	if h.getURLCalls != 0 {
		t.Fatal("no network activity expected without the elevated credential")
	}
}

func TestUploadLinkOnly(t *testing.T) {
	h := &uploadHarness{}
	d := newTestDispatcher(t, h.roundTrip)
	u := NewUploader(NewClient(d, nil), Thresholds{
		InlineMax: 8, SnippetMax: 16, StandardMax: 32, ElevatedMax: 64,
	}, nil)

	res, err := u.Upload(context.Background(), UploadRequest{
		Filename: "huge.bin",
		Content:  bytes.Repeat([]byte{0xff}, 100),
		Channel:  "C1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Strategy != StrategyLinkOnly {
		t.Fatalf("got strategy %s", res.Strategy)
	}
	if h.getURLCalls != 0 || h.putCalls != 0 {
		t.Fatal("link-only must not transfer bytes")
	}
	if len(h.messages) != 1 || !strings.Contains(h.messages[0], "huge.bin") {
		t.Fatalf("descriptive message missing: %v", h.messages)
	}
}

func TestFormatSize(t *testing.T) {
	cases := []struct {
		n    int64
		want string
	}{
		{512, "512 bytes"},
		{51_200, "50.0 KB"},
		{5 << 20, "5.0 MB"},
		{3 << 30, "3.0 GB"},
	}
	for _, tc := range cases {
		if got := FormatSize(tc.n); got != tc.want {
			t.Fatalf("FormatSize(%d) = %q, want %q", tc.n, got, tc.want)
		}
	}
}
