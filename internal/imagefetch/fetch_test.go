package imagefetch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// jpegHeader is enough for content sniffing to report image/jpeg.
var jpegHeader = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/menu.jpg":
			w.Write(jpegHeader)
		case "/big.jpg":
			w.Write(append(append([]byte{}, jpegHeader...), bytes.Repeat([]byte{0}, 100)...))
		case "/page.html":
			w.Write([]byte("<html><body>login</body></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	f := New(64, 5*time.Second)
	ctx := context.Background()

	img, err := f.Fetch(ctx, server.URL+"/menu.jpg")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if img.MIMEType != "image/jpeg" || !bytes.Equal(img.Data, jpegHeader) {
		t.Errorf("Fetch() = %s, %d bytes", img.MIMEType, len(img.Data))
	}

	if _, err := f.Fetch(ctx, server.URL+"/big.jpg"); !errors.Is(err, ErrTooLarge) {
		t.Errorf("oversize error = %v, want ErrTooLarge", err)
	}
	if _, err := f.Fetch(ctx, server.URL+"/page.html"); err == nil {
		t.Error("non-image body should fail")
	}
	if _, err := f.Fetch(ctx, server.URL+"/missing.jpg"); err == nil {
		t.Error("404 should fail")
	}
}

func TestFetch_RetriesOn5xx(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write(jpegHeader)
	}))
	defer server.Close()

	if _, err := New(1024, 5*time.Second).Fetch(context.Background(), server.URL); err != nil {
		t.Fatalf("Fetch() should succeed after retry, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestFetch_NoRetryOn4xx(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	if _, err := New(1024, 5*time.Second).Fetch(context.Background(), server.URL); err == nil {
		t.Fatal("expected error for 403")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}
