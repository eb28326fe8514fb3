package upbeat

// UART is the transmit side of a serial port.
type UART interface {
	WriteByte(c byte) error
}

// UARTWriter turns a UART into an io.Writer for the logger, expanding
// newlines to CR LF for the terminal on the other end.
type UARTWriter struct {
	uart UART
}

func NewUARTWriter(u UART) *UARTWriter {
	return &UARTWriter{uart: u}
}

func (w *UARTWriter) Write(p []byte) (int, error) {
	return w.WriteString(string(p))
}

// WriteString writes s, sending CR before each LF.  The logger
// finds it through io.WriteString.
func (w *UARTWriter) WriteString(s string) (int, error) {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			if err := w.uart.WriteByte('\r'); err != nil {
				return i, err
			}
		}
		if err := w.uart.WriteByte(s[i]); err != nil {
			return i, err
		}
	}
	return len(s), nil
}
