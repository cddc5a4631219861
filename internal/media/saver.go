package media

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"forge-market/internal/apperr"
)

// 仅接受常见图片扩展名。
var allowedExts = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
}

// DefaultMaxBytes 默认单张照片大小上限（5 MiB）。
const DefaultMaxBytes = 5 << 20

// StoredFile 描述一张已落盘的照片。
type StoredFile struct {
	Filename string
	URL      string
}

// Saver 将上传的照片写入本地目录，文件名加 UUID 后缀避免冲突。
type Saver struct {
	dir      string
	maxBytes int64
}

// NewSaver 创建 Saver，maxBytes 为零时使用默认上限。
func NewSaver(dir string, maxBytes int64) *Saver {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Saver{dir: dir, maxBytes: maxBytes}
}

// Save 校验扩展名与大小后写入文件，返回文件名与对外 URL。
func (s *Saver) Save(originalName string, r io.Reader) (StoredFile, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if _, ok := allowedExts[ext]; !ok {
		return StoredFile{}, apperr.Validation("only image files are allowed")
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return StoredFile{}, fmt.Errorf("create upload dir: %w", err)
	}

	name := fmt.Sprintf("photo-%s%s", uuid.NewString(), ext)
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return StoredFile{}, fmt.Errorf("create upload file: %w", err)
	}
	defer f.Close()

	// 多读一个字节以识别超限。
	n, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		_ = os.Remove(path)
		return StoredFile{}, fmt.Errorf("write upload file: %w", err)
	}
	if n > s.maxBytes {
		_ = os.Remove(path)
		return StoredFile{}, apperr.Validation("file too large")
	}

	return StoredFile{Filename: name, URL: "/uploads/" + name}, nil
}
