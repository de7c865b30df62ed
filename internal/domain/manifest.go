package domain

import "strings"

// Manifest is the subset of a IIIF presentation manifest used for image lookup.
type Manifest struct {
	ID        string             `json:"@id"`
	Sequences []ManifestSequence `json:"sequences"`
}

// ManifestSequence is an ordered list of canvases.
type ManifestSequence struct {
	Canvases []ManifestCanvas `json:"canvases"`
}

// ManifestCanvas is a single page with its images.
type ManifestCanvas struct {
	Images []ManifestImage `json:"images"`
}

// ManifestImage points at an image resource.
type ManifestImage struct {
	Resource struct {
		ID string `json:"@id"`
	} `json:"resource"`
}

// FirstImage returns the first admissible image URL of the first sequence,
// walking canvases and their images in order.
func (m Manifest) FirstImage() (string, bool) {
	if len(m.Sequences) == 0 {
		return "", false
	}
	for _, canvas := range m.Sequences[0].Canvases {
		for _, img := range canvas.Images {
			if IsAdmissibleImage(img.Resource.ID) {
				return img.Resource.ID, true
			}
		}
	}
	return "", false
}

// IsAdmissibleImage reports whether url is a .jpg/.png raster that is not institutional branding.
func IsAdmissibleImage(url string) bool {
	lower := strings.ToLower(url)
	if !strings.HasSuffix(lower, ".jpg") && !strings.HasSuffix(lower, ".png") {
		return false
	}
	return !strings.Contains(lower, "logo")
}
