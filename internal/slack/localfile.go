package slack

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Local file access for the upload tools. Sensitive paths are refused before
// any bytes leave the machine.

var sensitiveExtensions = map[string]bool{
	".key": true, ".pem": true, ".p12": true, ".jks": true, ".keystore": true,
}

var sensitiveNameParts = []string{
	"passwd", "shadow", "private", "secrets", "credentials",
	"config", "settings", "token", "api_key", "password",
}

var systemPathPrefixes = []string{"/etc", "/usr", "/sys", "/proc", "/var"}

var sensitiveDirs = map[string]bool{
	".ssh": true, ".aws": true, ".config": true, ".env": true,
	"credentials": true, "secrets": true,
}

var sensitiveSuffixes = []string{".bak", ".tmp", ".swp", "~", ".DS_Store"}

// IsSensitiveFile reports whether a path looks like key material, system
// configuration, or scratch data that should never be shared.
func IsSensitiveFile(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	if sensitiveExtensions[strings.ToLower(filepath.Ext(path))] {
		return true
	}
	for _, part := range sensitiveNameParts {
		if strings.Contains(name, part) {
			return true
		}
	}
	for _, prefix := range systemPathPrefixes {
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if sensitiveDirs[part] {
			return true
		}
	}
	base := filepath.Base(path)
	for _, suffix := range sensitiveSuffixes {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}

// FileInfo describes one local file.
type FileInfo struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Extension string    `json:"extension"`
	IsText    bool      `json:"is_text"`
	Modified  time.Time `json:"modified"`
}

// StatFile resolves a path to FileInfo. Missing paths and non-regular files
// come back as typed errors so the tool layer can render a hint.
func StatFile(path string) (*FileInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &APIError{Kind: KindNotFound, Message: fmt.Sprintf("file does not exist: %s", path), Hint: "Check the file path."}
		}
		return nil, &APIError{Kind: KindInvalidArgument, Message: err.Error(), Hint: "Check the file path and permissions.", cause: err}
	}
	if !st.Mode().IsRegular() {
		return nil, &APIError{Kind: KindInvalidArgument, Message: fmt.Sprintf("path is not a regular file: %s", path), Hint: "Check the file path."}
	}
	return &FileInfo{
		Name:      filepath.Base(path),
		Path:      path,
		Size:      st.Size(),
		Extension: strings.ToLower(filepath.Ext(path)),
		IsText:    textExtensions[strings.ToLower(filepath.Ext(path))],
		Modified:  st.ModTime().UTC(),
	}, nil
}

// ReadFileForUpload loads a local file after the sensitivity check. The
// returned name is the path's base name.
func ReadFileForUpload(path string) (string, []byte, error) {
	if IsSensitiveFile(path) {
		return "", nil, &APIError{
			Kind:    KindPermissionDenied,
			Message: fmt.Sprintf("refusing to upload sensitive file: %s", path),
			Hint:    "Key material, credentials and system files cannot be shared.",
		}
	}
	info, err := StatFile(path)
	if err != nil {
		return "", nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", nil, &APIError{Kind: KindInvalidArgument, Message: err.Error(), Hint: "Check the file permissions.", cause: err}
	}
	return info.Name, content, nil
}

// FilePreview is the first maxLines lines of a text file, without uploading.
type FilePreview struct {
	FileInfo   FileInfo `json:"file_info"`
	Content    string   `json:"preview_content,omitempty"`
	LinesShown int      `json:"lines_shown"`
	Truncated  bool     `json:"truncated"`
}

// PreviewFile reads up to maxLines lines (default 20). Binary files get the
// metadata only.
func PreviewFile(path string, maxLines int) (*FilePreview, error) {
	if maxLines <= 0 {
		maxLines = 20
	}
	info, err := StatFile(path)
	if err != nil {
		return nil, err
	}
	preview := &FilePreview{FileInfo: *info}
	if !info.IsText {
		return preview, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &APIError{Kind: KindInvalidArgument, Message: err.Error(), Hint: "Check the file permissions.", cause: err}
	}
	defer func() { _ = f.Close() }()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if len(lines) >= maxLines {
			preview.Truncated = true
			break
		}
		lines = append(lines, strings.TrimRight(scanner.Text(), " \t\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, &APIError{Kind: KindInvalidArgument, Message: err.Error(), Hint: "Check the file encoding.", cause: err}
	}
	preview.Content = strings.Join(lines, "\n")
	preview.LinesShown = len(lines)
	return preview, nil
}

// VerifyResult reports an existence check or creation.
type VerifyResult struct {
	PathExists  bool      `json:"path_exists"`
	IsFile      bool      `json:"is_file"`
	FileCreated bool      `json:"file_created"`
	FileInfo    *FileInfo `json:"file_info,omitempty"`
	Message     string    `json:"message"`
}

// VerifyOrCreateFile checks that path names an existing regular file, or
// creates it (including parent directories) when content is provided.
func VerifyOrCreateFile(path, content string) (*VerifyResult, error) {
	info, err := StatFile(path)
	if err == nil {
		return &VerifyResult{
			PathExists: true,
			IsFile:     true,
			FileInfo:   info,
			Message:    fmt.Sprintf("file exists: %s", info.Name),
		}, nil
	}
	if KindOf(err) != KindNotFound {
		return nil, err
	}
	if content == "" {
		return nil, &APIError{
			Kind:    KindNotFound,
			Message: fmt.Sprintf("file does not exist and no content was provided: %s", path),
			Hint:    "Provide content to create the file.",
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &APIError{Kind: KindInvalidArgument, Message: err.Error(), Hint: "Check directory write permissions.", cause: err}
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, &APIError{Kind: KindInvalidArgument, Message: err.Error(), Hint: "Check file write permissions.", cause: err}
	}
	info, err = StatFile(path)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{
		PathExists:  true,
		IsFile:      true,
		FileCreated: true,
		FileInfo:    info,
		Message:     fmt.Sprintf("file created: %s", info.Name),
	}, nil
}
