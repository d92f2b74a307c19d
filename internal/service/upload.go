package service

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"confreg/internal/proof"
	"confreg/internal/workflow"
)

const maxFieldBytes = 16 << 10

// submissionUpload is a payment submission read part by part from a
// multipart body.
type submissionUpload struct {
	form workflow.SubmissionForm
	file *proof.File
	seen map[string]bool
	// tooLarge is set when the file part exceeded the proof size limit.
	tooLarge bool
	// truncated is set when the body hit its cap before the last part.
	truncated bool
}

// fieldsComplete reports whether every required text field arrived.
func (u *submissionUpload) fieldsComplete() bool {
	return u.seen["attendeeIds"] && u.seen["memberId"]
}

// readSubmission streams the multipart body. The file part is held in memory
// up to maxFile bytes; text fields that precede an oversized file are still
// collected so they can be checked first.
func readSubmission(r *http.Request, maxFile int64) (*submissionUpload, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: expected multipart/form-data: %v", workflow.ErrMalformedInput, err)
	}

	up := &submissionUpload{seen: map[string]bool{}}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return up, nil
		}
		if err != nil {
			if isBodyCapped(err) {
				up.truncated = true
				return up, nil
			}
			return nil, fmt.Errorf("%w: broken multipart body: %v", workflow.ErrMalformedInput, err)
		}

		name := part.FormName()
		switch name {
		case "attendeeIds", "memberId", "paidDate":
			b, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
			if err != nil {
				if isBodyCapped(err) {
					up.truncated = true
					return up, nil
				}
				return nil, fmt.Errorf("%w: %s: %v", workflow.ErrMalformedInput, name, err)
			}
			if len(b) > maxFieldBytes {
				return nil, fmt.Errorf("%w: %s is too long", workflow.ErrMalformedInput, name)
			}
			up.setField(name, string(b))
		case "file":
			if up.file != nil || up.tooLarge {
				if err := discard(part); err != nil {
					up.truncated = true
					return up, nil
				}
				continue
			}
			data, err := io.ReadAll(io.LimitReader(part, maxFile+1))
			if err != nil {
				if isBodyCapped(err) {
					up.tooLarge, up.truncated = true, true
					return up, nil
				}
				return nil, fmt.Errorf("%w: %v", workflow.ErrInvalidProofFile, err)
			}
			if int64(len(data)) > maxFile {
				up.tooLarge = true
				if err := discard(part); err != nil {
					up.truncated = true
					return up, nil
				}
				continue
			}
			up.file = &proof.File{
				Name:        part.FileName(),
				ContentType: part.Header.Get("Content-Type"),
				Size:        int64(len(data)),
				Content:     bytes.NewReader(data),
			}
		default:
			if err := discard(part); err != nil {
				up.truncated = true
				return up, nil
			}
		}
	}
}

func (u *submissionUpload) setField(name, value string) {
	u.seen[name] = true
	value = strings.TrimSpace(value)
	switch name {
	case "attendeeIds":
		u.form.AttendeeIDs = value
	case "memberId":
		u.form.MemberID = value
	case "paidDate":
		u.form.PaidDate = value
	}
}

func discard(r io.Reader) error {
	_, err := io.Copy(io.Discard, r)
	return err
}

func isBodyCapped(err error) bool {
	var capped *http.MaxBytesError
	return errors.As(err, &capped)
}
