package main

import (
	"fmt"
	"io"
	"strings"

	tty "github.com/mattn/go-tty"

	"rtcore/src/lib/trust"
)

// console is the core's UART as seen from the host.
type console struct {
	io *tty.TTY
}

func openConsole(devTTYPath string) (*console, error) {
	ttyObj, err := tty.OpenDevice(devTTYPath)
	if err != nil {
		return nil, err
	}
	_ = ttyObj.MustRaw()
	return &console{io: ttyObj}, nil
}

func (c *console) Close() error {
	return c.io.Close()
}

// readLine collects one line, dropping control characters and whatever does
// not fit in data.  It also returns how many characters were dropped for
// lack of room.
func readLine(in io.Reader, data []uint8) (string, int, error) {
	count := 0
	dropped := 0
	for {
		r, err := in.Read(data[count : count+1])
		if err != nil {
			if err == io.EOF && count > 0 {
				return string(data[:count]), dropped, nil
			}
			return "", dropped, err
		}
		if r == 0 {
			continue
		}
		switch {
		case data[count] < 32 && data[count] != 10:
			continue
		case data[count] == 10:
			return string(data[:count]), dropped, nil
		default:
			if count == len(data)-1 {
				dropped++
				continue
			}
			count++
		}
	}
}

type lineKind int

const (
	lineLog lineKind = iota
	lineError
	lineWarn
	lineDebug
	lineStats
)

// classify sorts kernel log lines by their level prefix.
func classify(l string) (lineKind, string) {
	switch {
	case strings.HasPrefix(l, "ERROR:"):
		return lineError, strings.TrimSpace(l[6:])
	case strings.HasPrefix(l, " WARN:"):
		return lineWarn, strings.TrimSpace(l[6:])
	case strings.HasPrefix(l, "DEBUG:"):
		return lineDebug, strings.TrimSpace(l[6:])
	case strings.HasPrefix(l, "STATS["):
		return lineStats, l
	case strings.HasPrefix(l, " INFO:"):
		return lineLog, strings.TrimSpace(l[6:])
	}
	return lineLog, l
}

// tail copies the kernel log to out until the line source runs dry, with the
// !!!, ### and @@@ markers for errors, warnings and debug.
func tail(in io.Reader, out io.Writer, verbose int, logger *trust.Logger) error {
	buffer := make([]uint8, 512)
	for {
		l, dropped, err := readLine(in, buffer)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read from console: %v", err)
		}
		if dropped != 0 {
			logger.Warnf("dropped %d characters from line", dropped)
		}
		if len(l) == 0 {
			continue
		}
		kind, text := classify(l)
		switch kind {
		case lineError:
			fmt.Fprintf(out, "!!! %s\n", text)
		case lineWarn:
			fmt.Fprintf(out, "### %s\n", text)
		case lineDebug:
			if verbose > 0 {
				fmt.Fprintf(out, "@@@ %s\n", text)
			}
		case lineStats:
			if verbose > 1 {
				fmt.Fprintf(out, "%s\n", text)
			}
		default:
			fmt.Fprintf(out, "%s\n", text)
		}
	}
}
