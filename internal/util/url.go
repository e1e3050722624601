package util

import "net/url"

// storageHosts lists hosts that serve uploaded menu images.
var storageHosts = []string{
	"firebasestorage.googleapis.com",
	"storage.googleapis.com",
}

func isStorageHost(host string) bool {
	for _, h := range storageHosts {
		if host == h {
			return true
		}
	}
	return false
}

// NormalizeImageURL forces HTTPS and alt=media on Firebase Storage download
// URLs so a GET returns the object bytes rather than its metadata. Other
// URLs are returned unchanged.
func NormalizeImageURL(rawURL string) (string, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, err
	}
	if !isStorageHost(parsedURL.Hostname()) {
		return rawURL, nil
	}

	parsedURL.Scheme = "https"
	if parsedURL.Hostname() == "firebasestorage.googleapis.com" {
		q := parsedURL.Query()
		q.Set("alt", "media")
		parsedURL.RawQuery = q.Encode()
	}
	return parsedURL.String(), nil
}
