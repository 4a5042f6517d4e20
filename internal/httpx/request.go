package httpx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/bpowers/rsb-bench/internal/config"
)

// BuildRequest constructs one *http.Request from the workload configuration.
// The four body kinds (json, text, form, multipart) are mutually exclusive
// per config.Workload.Validate, so at most one of the body-setting branches
// below has any effect.
func BuildRequest(ctx context.Context, w *config.Workload) (*http.Request, error) {
	body, contentType, err := buildBody(w)
	if err != nil {
		return nil, fmt.Errorf("buildBody: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, string(w.Method), w.URL, body)
	if err != nil {
		return nil, fmt.Errorf("http.NewRequestWithContext: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func buildBody(w *config.Workload) (io.Reader, string, error) {
	switch {
	case w.JSONBody != "":
		return strings.NewReader(w.JSONBody), "application/json; charset=UTF-8", nil

	case w.JSONFile != "":
		f, err := os.Open(w.JSONFile)
		if err != nil {
			return nil, "", fmt.Errorf("os.Open(%s): %w", w.JSONFile, err)
		}
		return f, "application/json; charset=UTF-8", nil

	case w.TextBody != "":
		return strings.NewReader(w.TextBody), "text/plain; charset=UTF-8", nil

	case w.TextFile != "":
		f, err := os.Open(w.TextFile)
		if err != nil {
			return nil, "", fmt.Errorf("os.Open(%s): %w", w.TextFile, err)
		}
		return f, "text/plain; charset=UTF-8", nil

	case len(w.Form) > 0:
		values := url.Values{}
		for _, kv := range w.Form {
			k, v, ok := strings.Cut(kv, ":")
			if !ok {
				continue
			}
			values.Set(k, v)
		}
		return strings.NewReader(values.Encode()), "application/x-www-form-urlencoded", nil

	case len(w.Multipart) > 0 || len(w.MultipartFile) > 0:
		return buildMultipartBody(w)

	default:
		return nil, "", nil
	}
}

func buildMultipartBody(w *config.Workload) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for _, kv := range w.Multipart {
		k, v, ok := strings.Cut(kv, ":")
		if !ok {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("WriteField(%s): %w", k, err)
		}
	}

	for _, kv := range w.MultipartFile {
		filename, path, ok := strings.Cut(kv, ":")
		if !ok {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("os.ReadFile(%s): %w", path, err)
		}

		mt := mimetype.Detect(data)

		part, err := mw.CreatePart(multipartHeader(filename, filename, mt.String()))
		if err != nil {
			return nil, "", fmt.Errorf("CreatePart(%s): %w", filename, err)
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", fmt.Errorf("part.Write(%s): %w", filename, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("multipart.Writer.Close: %w", err)
	}

	return &buf, mw.FormDataContentType(), nil
}

func multipartHeader(fieldname, filename, contentType string) map[string][]string {
	h := map[string][]string{
		"Content-Disposition": {fmt.Sprintf(`form-data; name=%q; filename=%q`, fieldname, filename)},
	}
	if contentType != "" {
		h["Content-Type"] = []string{contentType}
	}
	return h
}
