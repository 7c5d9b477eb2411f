package slack

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/zeebo/blake3"
)

// UploadStrategy is one of the five size-tiered transfer methods.
type UploadStrategy string

const (
	StrategyInline   UploadStrategy = "inline"
	StrategySnippet  UploadStrategy = "snippet"
	StrategyStandard UploadStrategy = "standard_upload"
	StrategyElevated UploadStrategy = "elevated_upload"
	StrategyLinkOnly UploadStrategy = "link_only"
)

// UploadPhase tracks progress through the three-phase protocol.
type UploadPhase string

const (
	PhaseRequested    UploadPhase = "requested"
	PhaseTransferring UploadPhase = "transferring"
	PhaseCompleting   UploadPhase = "completing"
	PhaseDone         UploadPhase = "done"
	PhaseFailed       UploadPhase = "failed"
)

// Thresholds are the ascending strategy boundaries. A size equal to a
// threshold belongs to the smaller tier.
type Thresholds struct {
	InlineMax   int64
	SnippetMax  int64
	StandardMax int64
	ElevatedMax int64
}

// DefaultThresholds: 50 KB / 1 MB / 100 MB / 1 GB.
func DefaultThresholds() Thresholds {
	return Thresholds{
		InlineMax:   51200,
		SnippetMax:  1 << 20,
		StandardMax: 100 << 20,
		ElevatedMax: 1 << 30,
	}
}

func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.InlineMax <= 0 {
		t.InlineMax = d.InlineMax
	}
	if t.SnippetMax <= 0 {
		t.SnippetMax = d.SnippetMax
	}
	if t.StandardMax <= 0 {
		t.StandardMax = d.StandardMax
	}
	if t.ElevatedMax <= 0 {
		t.ElevatedMax = d.ElevatedMax
	}
	return t
}

// SelectStrategy is a pure function of content size and text-likeness.
// Small binary content skips the inline tier and goes out as a snippet.
func SelectStrategy(size int64, textLike bool, t Thresholds) UploadStrategy {
	t = t.withDefaults()
	switch {
	case size <= t.InlineMax && textLike:
		return StrategyInline
	case size <= t.SnippetMax:
		return StrategySnippet
	case size <= t.StandardMax:
		return StrategyStandard
	case size <= t.ElevatedMax:
		return StrategyElevated
	default:
		return StrategyLinkOnly
	}
}

// textExtensions marks file types that can travel inline as message text.
var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".json": true, ".csv": true, ".log": true,
	".ini": true, ".cfg": true, ".yml": true, ".yaml": true, ".xml": true,
	".py": true, ".js": true, ".go": true, ".html": true, ".css": true,
}

// snippetLanguages maps extensions to code-fence languages.
var snippetLanguages = map[string]string{
	".py": "python", ".js": "javascript", ".go": "go", ".html": "html",
	".css": "css", ".json": "json", ".xml": "xml", ".sql": "sql",
	".sh": "shell", ".yml": "yaml", ".yaml": "yaml", ".md": "markdown",
}

// isTextLike combines the extension allow-list with content sniffing, so a
// .dat file full of UTF-8 still qualifies and a .txt full of binary does not.
func isTextLike(filename string, content []byte) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if textExtensions[ext] {
		return true
	}
	if len(content) == 0 {
		return false
	}
	sniffLen := len(content)
	if sniffLen > 3072 {
		sniffLen = 3072
	}
	mt := mimetype.Detect(content[:sniffLen])
	for ; mt != nil; mt = mt.Parent() {
		if mt.Is("text/plain") {
			return true
		}
	}
	return false
}

// UploadRequest carries one upload call.
type UploadRequest struct {
	Filename string
	Content  []byte
	Channel  string
	Title    string
	Comment  string
}

// UploadSession is owned by the orchestrator for the duration of one upload.
// The strategy is fixed once selected and never changes mid-flight.
type UploadSession struct {
	Filename  string
	Channel   string
	Size      int64
	Strategy  UploadStrategy
	Digest    string
	UploadURL string
	FileID    string
	Phase     UploadPhase
}

// UploadResult is returned on success.
type UploadResult struct {
	Strategy UploadStrategy  `json:"strategy"`
	Size     int64           `json:"size"`
	Digest   string          `json:"digest"`
	FileID   string          `json:"file_id,omitempty"`
	Receipt  *MessageReceipt `json:"receipt,omitempty"`
	Message  string          `json:"message"`
}

// Uploader implements the size-tiered upload strategy selection and the
// three-phase large-object protocol on top of the dispatcher.
type Uploader struct {
	client     *Client
	thresholds Thresholds
	logger     *slog.Logger
}

func NewUploader(client *Client, thresholds Thresholds, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{client: client, thresholds: thresholds.withDefaults(), logger: logger}
}

// Upload picks a strategy from the content size and drives it to completion.
func (u *Uploader) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if req.Filename == "" {
		return nil, &APIError{Kind: KindInvalidArgument, Message: "upload needs a filename", Hint: "Provide a filename for the content."}
	}
	if req.Title == "" {
		req.Title = req.Filename
	}
	size := int64(len(req.Content))

	sess := &UploadSession{
		Filename: req.Filename,
		Channel:  req.Channel,
		Size:     size,
		Digest:   contentDigest(req.Content),
		Strategy: SelectStrategy(size, isTextLike(req.Filename, req.Content), u.thresholds),
	}
	u.logger.Info("upload strategy selected",
		"file", req.Filename, "size", size, "strategy", string(sess.Strategy), "digest", sess.Digest)

	switch sess.Strategy {
	case StrategyInline:
		return u.sendInline(ctx, sess, req)
	case StrategySnippet:
		return u.sendSnippet(ctx, sess, req)
	case StrategyStandard:
		return u.sendExternal(ctx, sess, req, CapabilityNone)
	case StrategyElevated:
		return u.sendExternal(ctx, sess, req, CapabilityElevated)
	default:
		return u.sendLinkOnly(ctx, sess, req)
	}
}

func (u *Uploader) sendInline(ctx context.Context, sess *UploadSession, req UploadRequest) (*UploadResult, error) {
	text := fmt.Sprintf("*File shared: %s*\nname: `%s`\nsize: `%s`\n%s```\n%s\n```",
		req.Title, req.Filename, FormatSize(sess.Size), commentLine(req.Comment), string(req.Content))
	receipt, err := u.client.SendMessage(ctx, req.Channel, text, "")
	if err != nil {
		return nil, err
	}
	return &UploadResult{
		Strategy: sess.Strategy,
		Size:     sess.Size,
		Digest:   sess.Digest,
		Receipt:  receipt,
		Message:  fmt.Sprintf("file %q shared as message text", req.Title),
	}, nil
}

func (u *Uploader) sendSnippet(ctx context.Context, sess *UploadSession, req UploadRequest) (*UploadResult, error) {
	content := string(req.Content)
	truncated := false
	if int64(len(content)) > u.thresholds.InlineMax {
		// Back off to a rune boundary so the cut never splits a multi-byte
		// character.
		cut := int(u.thresholds.InlineMax)
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut]
		truncated = true
	}
	lang := snippetLanguages[strings.ToLower(filepath.Ext(req.Filename))]
	var b strings.Builder
	fmt.Fprintf(&b, "*Snippet: %s* (`%s`, %s)\n%s", req.Title, req.Filename, FormatSize(sess.Size), commentLine(req.Comment))
	fmt.Fprintf(&b, "```%s\n%s\n```", lang, content)
	if truncated {
		b.WriteString("\n_(content truncated)_")
	}
	receipt, err := u.client.SendMessage(ctx, req.Channel, b.String(), "")
	if err != nil {
		return nil, err
	}
	return &UploadResult{
		Strategy: sess.Strategy,
		Size:     sess.Size,
		Digest:   sess.Digest,
		Receipt:  receipt,
		Message:  fmt.Sprintf("file %q shared as a code snippet", req.Title),
	}, nil
}

// sendExternal drives the three-phase protocol: request an upload destination,
// transfer the raw bytes, then finalize. A failure in the transfer or
// completion phase does not restart the sequence; retries apply only inside
// each phase's own dispatch call.
func (u *Uploader) sendExternal(ctx context.Context, sess *UploadSession, req UploadRequest, capability Capability) (*UploadResult, error) {
	d := u.client.Dispatcher()

	// Phase 1: request a one-time destination.
	sess.Phase = PhaseRequested
	raw, err := d.Execute(ctx, RequestSpec{
		Endpoint:   "files.getUploadURLExternal",
		Method:     http.MethodPost,
		Body:       map[string]any{"filename": req.Filename, "length": sess.Size},
		Capability: capability,
	})
	if err != nil {
		sess.Phase = PhaseFailed
		return nil, err
	}
	var dest getUploadURLResponse
	if err := json.Unmarshal(raw, &dest); err != nil {
		sess.Phase = PhaseFailed
		return nil, newUploadPhaseError("request", fmt.Errorf("decode files.getUploadURLExternal response: %w", err))
	}
	if dest.UploadURL == "" || dest.FileID == "" {
		sess.Phase = PhaseFailed
		return nil, newUploadPhaseError("request", fmt.Errorf("destination response missing upload_url or file_id"))
	}
	sess.UploadURL = dest.UploadURL
	sess.FileID = dest.FileID

	// Phase 2: raw transfer outside the API envelope.
	sess.Phase = PhaseTransferring
	if err := d.RawPut(ctx, sess.UploadURL, bytes.NewReader(req.Content), sess.Size); err != nil {
		sess.Phase = PhaseFailed
		return nil, newUploadPhaseError("transfer", err)
	}

	// Phase 3: finalize, making the file visible in the channel.
	sess.Phase = PhaseCompleting
	body := map[string]any{
		"files":      []map[string]any{{"id": sess.FileID, "title": req.Title}},
		"channel_id": req.Channel,
	}
	if req.Comment != "" {
		body["initial_comment"] = req.Comment
	}
	raw, err = d.Execute(ctx, RequestSpec{
		Endpoint:   "files.completeUploadExternal",
		Method:     http.MethodPost,
		Body:       body,
		Capability: capability,
	})
	if err != nil {
		sess.Phase = PhaseFailed
		return nil, newUploadPhaseError("complete", err)
	}
	var done completeUploadResponse
	if err := json.Unmarshal(raw, &done); err != nil {
		sess.Phase = PhaseFailed
		return nil, newUploadPhaseError("complete", fmt.Errorf("decode files.completeUploadExternal response: %w", err))
	}

	sess.Phase = PhaseDone
	fileID := sess.FileID
	if len(done.Files) > 0 && done.Files[0].ID != "" {
		fileID = done.Files[0].ID
	}
	return &UploadResult{
		Strategy: sess.Strategy,
		Size:     sess.Size,
		Digest:   sess.Digest,
		FileID:   fileID,
		Message:  fmt.Sprintf("file %q uploaded", req.Title),
	}, nil
}

func (u *Uploader) sendLinkOnly(ctx context.Context, sess *UploadSession, req UploadRequest) (*UploadResult, error) {
	text := fmt.Sprintf("*Large file: %s*\nname: `%s`\nsize: `%s`\ndigest: `%s`\n%s"+
		"The file exceeds the %s upload limit and was not transferred. "+
		"Split it, compress it, or share a storage link instead.",
		req.Title, req.Filename, FormatSize(sess.Size), sess.Digest,
		commentLine(req.Comment), FormatSize(u.thresholds.ElevatedMax))
	receipt, err := u.client.SendMessage(ctx, req.Channel, text, "")
	if err != nil {
		return nil, err
	}
	return &UploadResult{
		Strategy: sess.Strategy,
		Size:     sess.Size,
		Digest:   sess.Digest,
		Receipt:  receipt,
		Message:  fmt.Sprintf("file %q described without transfer", req.Title),
	}, nil
}

func commentLine(comment string) string {
	if strings.TrimSpace(comment) == "" {
		return ""
	}
	return comment + "\n"
}

// contentDigest returns the hex blake3 digest of the content, used as a
// stable content identity in logs and results.
func contentDigest(content []byte) string {
	h := blake3.New()
	_, _ = h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// FormatSize renders a byte count in human units.
func FormatSize(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d bytes", n)
	case n < 1<<20:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	case n < 1<<30:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	default:
		return fmt.Sprintf("%.1f GB", float64(n)/(1<<30))
	}
}
