// Package console renders ecodash-cli output with pterm.
package console

import (
	"io"
	"os"

	"github.com/pterm/pterm"
)

// Console prints log lines, tables and spinners to a single writer.
type Console struct {
	out         io.Writer
	interactive bool
}

// New returns a console on stdout with spinners enabled.
func New() *Console {
	return &Console{out: os.Stdout, interactive: true}
}

// NewWithWriter returns a console that writes to out. Spinners are disabled.
func NewWithWriter(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) Writer() io.Writer {
	return c.out
}

func (c *Console) LogInfo(format string, a ...any) {
	pterm.Info.WithWriter(c.out).Printfln(format, a...)
}

func (c *Console) LogWarning(format string, a ...any) {
	pterm.Warning.WithWriter(c.out).Printfln(format, a...)
}

func (c *Console) LogError(format string, a ...any) {
	pterm.Error.WithWriter(c.out).Printfln(format, a...)
}

func (c *Console) LogSuccess(format string, a ...any) {
	pterm.Success.WithWriter(c.out).Printfln(format, a...)
}

// StatusHandle controls a running spinner.
type StatusHandle interface {
	Update(message string)
	Stop()
}

type statusHandle struct {
	spinner *pterm.SpinnerPrinter
}

// Status starts a spinner with the given message.
func (c *Console) Status(message string) StatusHandle {
	if !c.interactive {
		return &statusHandle{}
	}
	spinner, _ := pterm.DefaultSpinner.WithRemoveWhenDone(true).Start(message)
	return &statusHandle{spinner: spinner}
}

func (h *statusHandle) Update(message string) {
	if h.spinner != nil {
		h.spinner.UpdateText(message)
	}
}

func (h *statusHandle) Stop() {
	if h.spinner != nil {
		_ = h.spinner.Stop()
	}
}

// RenderTable draws a boxed table whose first row is the header.
func RenderTable(header []string, rows [][]string) string {
	data := pterm.TableData{header}
	data = append(data, rows...)

	rendered, _ := pterm.DefaultTable.
		WithHasHeader().
		WithBoxed().
		WithHeaderStyle(pterm.NewStyle(pterm.FgLightCyan)).
		WithData(data).
		Srender()
	return rendered
}

// PrintTable renders a table to the console writer.
func (c *Console) PrintTable(header []string, rows [][]string) {
	_, _ = io.WriteString(c.out, RenderTable(header, rows)+"\n")
}
