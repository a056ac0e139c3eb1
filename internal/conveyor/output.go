package conveyor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Hand-off file names.
const (
	OutputFilename = "conveyor.csv"
	outputTempName = "conveyor.csv.temp"

	outputPermissions = 0644
	outputDirPerms    = 0750
)

// OutputOp is a conveyor-to-POS operation code.
type OutputOp string

// Output operations.
const (
	OpLoadItem      OutputOp = "LOADITEM"
	OpUnloadItem    OutputOp = "UNLOADITEM"
	OpLoadInvoice   OutputOp = "LOADINV"
	OpUnloadInvoice OutputOp = "UNLOADINV"
	OpSplitInvoice  OutputOp = "SPLITINV"
	OpPrintInvoice  OutputOp = "PRINTINV"
)

// OutputWriter appends operations to conveyor.csv in dir. Each write copies
// the unread file into a temp file, appends, and renames it into place so
// the POS never sees a partial line.
//
// Thread Safety: safe for concurrent use.
type OutputWriter struct {
	dir string
	mu  sync.Mutex
}

// NewOutputWriter creates a writer for dir.
func NewOutputWriter(dir string) *OutputWriter {
	return &OutputWriter{dir: dir}
}

// Path returns the hand-off file path.
func (w *OutputWriter) Path() string {
	return filepath.Join(w.dir, OutputFilename)
}

// LoadItem records an item hung in slot.
func (w *OutputWriter) LoadItem(invoice, itemID string, slot int) error {
	return w.write(OpLoadItem, invoice, itemID, strconv.Itoa(slot))
}

// UnloadItem records an item taken off slot.
func (w *OutputWriter) UnloadItem(invoice, itemID string, slot int) error {
	return w.write(OpUnloadItem, invoice, itemID, strconv.Itoa(slot))
}

// LoadInvoice records a completed invoice stored in slot.
func (w *OutputWriter) LoadInvoice(invoice string, slot int) error {
	return w.write(OpLoadInvoice, invoice, strconv.Itoa(slot))
}

// UnloadInvoice records an invoice removed from slot.
func (w *OutputWriter) UnloadInvoice(invoice string, slot int) error {
	return w.write(OpUnloadInvoice, invoice, strconv.Itoa(slot))
}

// SplitInvoice records an item split off its invoice.
func (w *OutputWriter) SplitInvoice(invoice, itemID string) error {
	return w.write(OpSplitInvoice, invoice, itemID)
}

// PrintInvoice records a ticket print request.
func (w *OutputWriter) PrintInvoice(invoice string, printNumber int) error {
	return w.write(OpPrintInvoice, invoice, strconv.Itoa(printNumber))
}

// FormatLine renders one quoted hand-off line without the newline.
func FormatLine(op OutputOp, fields ...string) string {
	quoted := make([]string, 0, len(fields)+1)
	quoted = append(quoted, `"`+string(op)+`"`)
	for _, f := range fields {
		quoted = append(quoted, `"`+f+`"`)
	}
	return strings.Join(quoted, ",")
}

func (w *OutputWriter) write(op OutputOp, fields ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, outputDirPerms); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	existing, err := os.ReadFile(w.Path())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading %s: %w", OutputFilename, err)
	}

	buf := make([]byte, 0, len(existing)+128)
	buf = append(buf, existing...)
	if len(buf) > 0 && buf[len(buf)-1] != '\n' {
		buf = append(buf, '\n')
	}
	buf = append(buf, FormatLine(op, fields...)...)
	buf = append(buf, '\n')

	tmp := filepath.Join(w.dir, outputTempName)
	if err := os.WriteFile(tmp, buf, outputPermissions); err != nil {
		return fmt.Errorf("writing %s: %w", outputTempName, err)
	}
	if err := os.Rename(tmp, w.Path()); err != nil {
		return fmt.Errorf("renaming %s: %w", outputTempName, err)
	}
	return nil
}
