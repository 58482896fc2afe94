// Package utils provides small filesystem and logging helpers shared by the
// mirrorbox daemon.
package utils

import (
	"bufio"
	"bytes"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

// LogInterceptor implements io.Writer and prefixes every written line with a
// sequence number and timestamp before forwarding it to the target writer.
// It lets the file log handler drop its own time attribute without losing
// ordering information.
type LogInterceptor struct {
	target         io.Writer
	sequenceNumber *atomic.Uint64
	interceptBuf   *bytes.Buffer
}

func NewLogInterceptor(target io.Writer) *LogInterceptor {
	return &LogInterceptor{
		target:         target,
		sequenceNumber: &atomic.Uint64{},
		interceptBuf:   &bytes.Buffer{},
	}
}

func (i *LogInterceptor) writeFormattedLine(line []byte) (int, error) {
	lineNum := i.sequenceNumber.Add(1)
	totalWritten := 0

	lineNumStr := slog.Uint64("line", lineNum).String() + " "
	n, err := io.WriteString(i.target, lineNumStr)
	totalWritten += n
	if err != nil {
		return totalWritten, err
	}

	timeStr := slog.String("time", time.Now().Format(time.RFC3339)).String() + " "
	n, err = io.WriteString(i.target, timeStr)
	totalWritten += n
	if err != nil {
		return totalWritten, err
	}

	n, err = i.target.Write(append(line, '\n'))
	totalWritten += n
	return totalWritten, err
}

// Write buffers the input and processes complete lines, adding sequence
// numbers and timestamps to each one.
func (i *LogInterceptor) Write(p []byte) (n int, err error) {
	if _, err := i.interceptBuf.Write(p); err != nil {
		return 0, err
	}

	totalWritten := 0
	scanner := bufio.NewScanner(i.interceptBuf)
	scanner.Split(bufio.ScanLines) // handles both \n and \r\n
	for scanner.Scan() {
		n, err = i.writeFormattedLine(scanner.Bytes())
		totalWritten += n
		if err != nil {
			return totalWritten, err
		}
	}

	return totalWritten, nil
}

// Close flushes any remaining buffered data to the target writer.
func (i *LogInterceptor) Close() error {
	remaining := i.interceptBuf.Bytes()
	if len(remaining) > 0 {
		_, err := i.writeFormattedLine(remaining)
		return err
	}
	return nil
}
