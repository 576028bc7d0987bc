// Package storage keeps uploaded portfolio files on the local filesystem.
package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/onboarding-survey/internal/survey"
	"github.com/jonathan/onboarding-survey/internal/types"
)

// sniffLen is how many leading bytes are inspected to detect the content type.
const sniffLen = 3072

// LocalUploader writes portfolio files under a directory and serves them below a URL prefix.
type LocalUploader struct {
	dir          string
	publicPrefix string
	maxBytes     int64
	log          *zap.Logger
}

// NewLocalUploader creates dir if needed. maxBytes <= 0 means survey.MaxPortfolioBytes.
func NewLocalUploader(dir, publicPrefix string, maxBytes int64, logger *zap.Logger) (*LocalUploader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = survey.MaxPortfolioBytes
	}
	if !strings.HasSuffix(publicPrefix, "/") {
		publicPrefix += "/"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalUploader{dir: dir, publicPrefix: publicPrefix, maxBytes: maxBytes, log: logger.Named("storage")}, nil
}

// Dir is the directory files are written to.
func (u *LocalUploader) Dir() string { return u.dir }

// Upload stores the content of r under a random name. The declared type is checked
// against the sniffed content; the stored type is the sniffed one.
func (u *LocalUploader) Upload(ctx context.Context, file types.PortfolioFile, r io.Reader, onProgress func(int)) (types.UploadReceipt, error) {
	if file.Size > u.maxBytes {
		return types.UploadReceipt{}, invalid(fmt.Sprintf("File size must be less than %dMB", u.maxBytes/(1024*1024)))
	}

	br := bufio.NewReaderSize(r, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return types.UploadReceipt{}, fmt.Errorf("failed to read upload: %w", err)
	}
	detected := mimetype.Detect(head)
	contentType, ok := allowedType(detected)
	if !ok {
		u.log.Warn("rejected portfolio upload",
			zap.String("name", file.Name),
			zap.String("declared", file.Type),
			zap.String("detected", detected.String()))
		return types.UploadReceipt{}, invalid("File content does not match an allowed type")
	}

	ext := strings.ToLower(filepath.Ext(file.Name))
	if ext == "" {
		ext = detected.Extension()
	}
	filename := uuid.NewString() + ext

	tmp, err := os.CreateTemp(u.dir, ".upload-*")
	if err != nil {
		return types.UploadReceipt{}, fmt.Errorf("failed to create upload file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	pr := &progressReader{ctx: ctx, r: io.LimitReader(br, u.maxBytes+1), total: file.Size, onProgress: onProgress}
	written, err := io.Copy(tmp, pr)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return types.UploadReceipt{}, fmt.Errorf("failed to store upload: %w", err)
	}
	if written > u.maxBytes {
		return types.UploadReceipt{}, invalid(fmt.Sprintf("File size must be less than %dMB", u.maxBytes/(1024*1024)))
	}
	if written == 0 {
		return types.UploadReceipt{}, invalid("File is empty")
	}

	if err := os.Rename(tmp.Name(), filepath.Join(u.dir, filename)); err != nil {
		return types.UploadReceipt{}, fmt.Errorf("failed to store upload: %w", err)
	}
	if onProgress != nil {
		onProgress(100)
	}

	u.log.Info("stored portfolio file", zap.String("filename", filename), zap.Int64("size", written))
	return types.UploadReceipt{
		URL:      u.publicPrefix + filename,
		Filename: filename,
		Size:     written,
		Type:     contentType,
	}, nil
}

// allowedType maps the sniffed type onto the whitelist, following mimetype's parent chain
// so that aliases and subtypes resolve.
func allowedType(m *mimetype.MIME) (string, bool) {
	for ; m != nil; m = m.Parent() {
		for _, allowed := range survey.AllowedPortfolioTypes {
			if m.Is(allowed) {
				return allowed, true
			}
		}
	}
	return "", false
}

func invalid(msg string) error {
	return &survey.ValidationError{Step: survey.StepPortfolio, Message: msg}
}

// progressReader reports whole-percent progress below 100 and aborts when ctx is done.
type progressReader struct {
	ctx        context.Context
	r          io.Reader
	read       int64
	total      int64
	last       int
	onProgress func(int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	if err := p.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.onProgress != nil && p.total > 0 {
		pct := min(int(p.read*100/p.total), 99)
		if pct > p.last {
			p.last = pct
			p.onProgress(pct)
		}
	}
	return n, err
}
