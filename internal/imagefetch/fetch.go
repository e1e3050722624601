// Package imagefetch downloads uploaded menu images.
package imagefetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pauljones0/happymapper/internal/util"
)

// ErrTooLarge is returned when an image exceeds the configured size cap.
var ErrTooLarge = errors.New("image exceeds size limit")

const fetchRetries = 2

// Image is a downloaded menu photo.
type Image struct {
	Data     []byte
	MIMEType string
}

type Fetcher struct {
	client   *http.Client
	maxBytes int64
	retries  int
}

func New(maxBytes int64, timeout time.Duration) *Fetcher {
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
		retries:  fetchRetries,
	}
}

// Fetch downloads rawURL. Server errors are retried; client errors, non-image
// bodies and oversize images are not.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Image, error) {
	target, err := util.NormalizeImageURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid image URL: %w", err)
	}

	var img *Image
	err = util.RetryWithBackoff(ctx, f.retries, func(attempt int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return util.Permanent(err)
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			statusErr := fmt.Errorf("image download status: %s", resp.Status)
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return statusErr
			}
			return util.Permanent(statusErr)
		}
		if resp.ContentLength > f.maxBytes {
			return util.Permanent(ErrTooLarge)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		if int64(len(data)) > f.maxBytes {
			return util.Permanent(ErrTooLarge)
		}

		mimeType := http.DetectContentType(data)
		if !strings.HasPrefix(mimeType, "image/") {
			return util.Permanent(fmt.Errorf("downloaded content is not an image: %s", mimeType))
		}
		img = &Image{Data: data, MIMEType: mimeType}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	return img, nil
}
