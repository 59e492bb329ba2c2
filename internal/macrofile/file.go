package macrofile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dshills/stormscript/internal/buffer"
	"github.com/dshills/stormscript/internal/script"
)

// DefaultExtension is the extension of macro files.
const DefaultExtension = ".ksm"

// Read loads path into an unregistered buffer named after the file.
func Read(path string) (*buffer.Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading macro file: %w", err)
	}
	return buffer.NewFromString(filepath.Base(path), string(data), buffer.WithPath(path)), nil
}

// ExecuteFile runs the script in path n times over. Errors are located as
// "file '<base name>' at line N".
func ExecuteFile(ctx context.Context, ctl *script.Controller, path string, n int) (script.Result, error) {
	b, err := Read(path)
	if err != nil {
		return script.Result{}, &script.Error{Kind: script.KindRuntime, Label: script.LabelFile, Name: filepath.Base(path), Err: err}
	}
	return ctl.Invoke(ctx, b, n, script.LabelFile, script.FlagNoArgCheck, nil)
}
