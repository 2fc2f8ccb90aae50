//go:build degraded

// Built with -tags degraded: no image-processing facility, so the pipeline
// degrades to a straight byte copy (spec §4.3.2 "If image processing is
// unavailable").
package cache

import (
	"bytes"
	"io"
)

const imagingAvailable = false

// TransformOptions configures the resize+re-encode pipeline. In degraded
// mode only the presence of the struct matters; its fields are unused.
type TransformOptions struct {
	DisplayWidth  int
	DisplayHeight int
	Quality       int
}

// TransformResult is the re-encoded image plus its post-transform
// dimensions. In degraded mode Width/Height are left zero since the source
// is never decoded.
type TransformResult struct {
	Data   []byte
	Width  int
	Height int
}

// Transform streams src straight through with no resize or re-encode.
func Transform(src io.Reader, opts TransformOptions) (*TransformResult, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, src); err != nil {
		return nil, err
	}
	return &TransformResult{Data: buf.Bytes()}, nil
}
