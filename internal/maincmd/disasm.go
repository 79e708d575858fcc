package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/mna/asmjit/traceasm"
)

// Disasm parses each trace file and prints it back out in its canonical
// textual form, exercising the traceasm round trip the way the nenuphar
// tokenizer command exercises the scanner.
func (c *Cmd) Disasm(ctx context.Context, stdio mainer.Stdio, args []string) error {
	return DisasmFiles(ctx, stdio, args...)
}

func DisasmFiles(ctx context.Context, stdio mainer.Stdio, files ...string) error {
	var firstErr error
	for _, f := range files {
		if err := disasmFile(stdio, f); err != nil {
			firstErr = printError(stdio, err)
		}
	}
	return firstErr
}

func disasmFile(stdio mainer.Stdio, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	tr, err := traceasm.Asm(src)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	stdio.Stdout.Write(traceasm.Dasm(tr))
	return nil
}
