package ai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/pauljones0/happymapper/internal/models"
	"github.com/pauljones0/happymapper/internal/util"
)

const (
	menuFilename      = "menu.jpg"
	httpParserRetries = 2
)

// HTTPParser posts the image to an external parse-menu service as a
// multipart "file" upload and decodes its JSON response.
type HTTPParser struct {
	endpoint string
	client   *http.Client
	retries  int
}

func NewHTTPParser(endpoint string, timeout time.Duration) *HTTPParser {
	return &HTTPParser{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		retries:  httpParserRetries,
	}
}

func (p *HTTPParser) ParseMenu(ctx context.Context, image []byte, mimeType string) (*models.MenuExtraction, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	body, contentType, err := multipartImage(image, mimeType)
	if err != nil {
		return nil, err
	}

	var result *models.MenuExtraction
	err = util.RetryWithBackoff(ctx, p.retries, func(attempt int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
		if err != nil {
			return util.Permanent(err)
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := p.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to call AI service: %w", err)
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(resp.Body)
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			statusErr := fmt.Errorf("AI service error: %s - %s", resp.Status, bytes.TrimSpace(respBody))
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return statusErr
			}
			return util.Permanent(statusErr)
		}

		result, err = decodeExtraction(string(respBody))
		if err != nil {
			return util.Permanent(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func multipartImage(image []byte, mimeType string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, menuFilename))
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
