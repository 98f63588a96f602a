package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/google/uuid"
	"github.com/kazane-dev/kiroku/internal/config"
	"github.com/kazane-dev/kiroku/internal/extract"
	"github.com/kazane-dev/kiroku/internal/models"
	"go.uber.org/zap"
)

// Stream limit errors recorded per part. None of them abort the stream.
var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrFileTooLarge    = errors.New("file exceeds size limit")
	ErrTooManyFiles    = errors.New("too many files in request")
	ErrTooManyFields   = errors.New("too many form fields")
	ErrFieldTooLarge   = errors.New("form field exceeds size limit")
)

// copyBuf is the read granularity for streaming parts; progress is updated
// once per read.
const copyBuf = 32 * 1024

// receiverState is the explicit state of the part-consuming loop.
type receiverState int

const (
	stateReceiving receiverState = iota
	stateFinished
	stateErrored
)

// Receiver consumes a multipart stream into in-memory RawFile buffers,
// enforcing configured limits and publishing progress into the session arena.
type Receiver struct {
	cfg    config.UploadConfig
	arena  *Arena
	logger *zap.Logger
}

// NewReceiver creates a receiver backed by the given session arena.
func NewReceiver(cfg config.UploadConfig, arena *Arena, logger *zap.Logger) *Receiver {
	return &Receiver{cfg: cfg, arena: arena, logger: logger}
}

// Receive drives the multipart reader to the end of the stream. Rejected
// parts (unsupported type, over limit) are drained without buffering and
// recorded as session errors; the remaining parts still complete. Only a
// transport-level read error fails the whole call. The returned result holds
// every fully received file and all non-file form fields.
func (r *Receiver) Receive(mr *multipart.Reader, userID string) (*models.UploadResult, error) {
	sess := r.arena.Create(userID, r.cfg.MaxFileBytes)
	result := &models.UploadResult{
		SessionID: sess.ID,
		Fields:    make(map[string]string),
	}

	fileCount, fieldCount := 0, 0
	st := stateReceiving
	for st == stateReceiving {
		part, err := mr.NextPart()
		if err == io.EOF {
			st = stateFinished
			break
		}
		if err != nil {
			st = stateErrored
			sess.AddError(fmt.Sprintf("stream aborted: %v", err))
			sess.Complete()
			return nil, fmt.Errorf("read multipart stream: %w", err)
		}

		if part.FileName() == "" {
			fieldCount++
			r.consumeField(part, sess, result, fieldCount)
			continue
		}

		fileCount++
		if f := r.consumeFile(part, sess, fileCount); f != nil {
			result.Files = append(result.Files, f)
		}
	}

	sess.Complete()
	r.logger.Info("upload stream finished",
		zap.String("session_id", sess.ID),
		zap.Int("files", len(result.Files)),
		zap.Int("errors", len(sess.Errors())))
	result.Errors = sess.Errors()
	return result, nil
}

func (r *Receiver) consumeField(part *multipart.Part, sess *Session, result *models.UploadResult, fieldCount int) {
	defer part.Close()
	if fieldCount > r.cfg.MaxFields {
		sess.AddError(fmt.Sprintf("%v: field %q dropped", ErrTooManyFields, part.FormName()))
		drain(part)
		return
	}
	data, err := io.ReadAll(io.LimitReader(part, r.cfg.MaxFieldBytes+1))
	if err != nil {
		sess.AddError(fmt.Sprintf("read field %q: %v", part.FormName(), err))
		return
	}
	if int64(len(data)) > r.cfg.MaxFieldBytes {
		sess.AddError(fmt.Sprintf("%v: %q", ErrFieldTooLarge, part.FormName()))
		drain(part)
		return
	}
	result.Fields[part.FormName()] = string(data)
}

// consumeFile streams one file part. Returns nil when the part was rejected.
func (r *Receiver) consumeFile(part *multipart.Part, sess *Session, fileCount int) *models.RawFile {
	defer part.Close()
	fileID := uuid.New().String()
	fileName := part.FileName()
	mimeType := part.Header.Get("Content-Type")

	if fileCount > r.cfg.MaxFiles {
		sess.SetStatus(fileID, models.StatusError, ErrTooManyFiles.Error())
		sess.AddError(fmt.Sprintf("%v: %q dropped", ErrTooManyFiles, fileName))
		drain(part)
		return nil
	}
	if !r.typeAllowed(mimeType) {
		sess.SetStatus(fileID, models.StatusError, ErrUnsupportedType.Error())
		sess.AddError(fmt.Sprintf("%v: %q (%s)", ErrUnsupportedType, fileName, mimeType))
		drain(part)
		return nil
	}

	sess.TrackFile(fileID, fileName)
	var buf bytes.Buffer
	chunk := make([]byte, copyBuf)
	for {
		n, err := part.Read(chunk)
		if n > 0 {
			if int64(buf.Len())+int64(n) > r.cfg.MaxFileBytes {
				sess.SetStatus(fileID, models.StatusError, ErrFileTooLarge.Error())
				sess.AddError(fmt.Sprintf("%v: %q", ErrFileTooLarge, fileName))
				drain(part)
				return nil
			}
			buf.Write(chunk[:n])
			sess.AddBytes(fileID, int64(n))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			sess.SetStatus(fileID, models.StatusError, err.Error())
			sess.AddError(fmt.Sprintf("read file %q: %v", fileName, err))
			return nil
		}
	}

	sess.SetStatus(fileID, models.StatusCompleted, "")
	return &models.RawFile{
		ID:        fileID,
		FieldName: part.FormName(),
		FileName:  fileName,
		MimeType:  mimeType,
		Data:      buf.Bytes(),
		Size:      int64(buf.Len()),
	}
}

// typeAllowed checks the declared MIME type against the configured allowlist
// and the extraction table. An empty allowlist admits every extractable type.
func (r *Receiver) typeAllowed(mimeType string) bool {
	if !extract.Supported(mimeType) {
		return false
	}
	if len(r.cfg.AllowedTypes) == 0 {
		return true
	}
	base := mimeType
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = base[:i]
	}
	base = strings.ToLower(strings.TrimSpace(base))
	for _, t := range r.cfg.AllowedTypes {
		if strings.ToLower(t) == base {
			return true
		}
	}
	return false
}

// drain discards the remainder of a rejected part so the stream can advance
// without buffering it.
func drain(part *multipart.Part) {
	_, _ = io.Copy(io.Discard, part)
}
