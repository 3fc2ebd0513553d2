package prompt

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// TesseractOCR shells out to the tesseract binary, reading recognized text
// from stdout.
type TesseractOCR struct {
	// Binary overrides the executable name, for tests and non-standard
	// installs.
	Binary string
	// Languages is the tesseract -l value, e.g. "spa+eng". Empty uses the
	// engine default.
	Languages string
}

func (t *TesseractOCR) ExtractText(ctx context.Context, imagePath string) (string, error) {
	binary := t.Binary
	if binary == "" {
		binary = "tesseract"
	}
	args := []string{imagePath, "stdout"}
	if t.Languages != "" {
		args = append(args, "-l", t.Languages)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}
