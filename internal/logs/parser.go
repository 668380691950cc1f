package logs

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"regexp"
	"strings"
)

const (
	maxLineLen       = 200
	DefaultMaxErrors = 10
)

// errorPattern matches lines that look like failures or warnings in common
// application log formats. Matching is case sensitive.
var errorPattern = regexp.MustCompile(`ERROR|Error|error:|ERR\]|CRITICAL|Exception|Failed|failed|WARN|Warning`)

type Line struct {
	Stream  string
	Message string
}

// ParseDockerStream splits a container log stream into lines. It handles both
// the multiplexed format used without a TTY and plain output.
func ParseDockerStream(r io.Reader, emit func(Line)) error {
	br := bufio.NewReader(r)
	for {
		header, err := br.Peek(8)
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return parsePlainStream(br, "stdout", emit)
			}
			return err
		}
		if !isMultiplexHeader(header) {
			return parsePlainStream(br, "stdout", emit)
		}
		_, _ = br.Discard(8)
		stream := "stdout"
		if header[0] == 2 {
			stream = "stderr"
		}
		size := binary.BigEndian.Uint32(header[4:])
		if size == 0 {
			continue
		}
		payload := make([]byte, int(size))
		if _, err := io.ReadFull(br, payload); err != nil {
			return err
		}
		// a frame may hold several lines
		for _, l := range strings.Split(string(payload), "\n") {
			emitLine(l, stream, emit)
		}
	}
}

func isMultiplexHeader(header []byte) bool {
	if len(header) < 8 {
		return false
	}
	if header[0] != 1 && header[0] != 2 {
		return false
	}
	return header[1] == 0 && header[2] == 0 && header[3] == 0
}

func parsePlainStream(br *bufio.Reader, stream string, emit func(Line)) error {
	sc := bufio.NewScanner(br)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		emitLine(sc.Text(), stream, emit)
	}
	return sc.Err()
}

func emitLine(raw, stream string, emit func(Line)) {
	msg := sanitizeMessage(raw)
	if msg == "" {
		return
	}
	emit(Line{Stream: stream, Message: msg})
}

// ExtractErrors returns the distinct lines that match the error pattern in the
// order they first appear, each capped at 200 characters.
func ExtractErrors(lines []Line, max int) []string {
	if max <= 0 {
		max = DefaultMaxErrors
	}
	out := []string{}
	seen := map[string]struct{}{}
	for _, l := range lines {
		if !errorPattern.MatchString(l.Message) {
			continue
		}
		msg := truncate(l.Message)
		if _, dup := seen[msg]; dup {
			continue
		}
		seen[msg] = struct{}{}
		out = append(out, msg)
		if len(out) == max {
			break
		}
	}
	return out
}

func truncate(msg string) string {
	r := []rune(msg)
	if len(r) <= maxLineLen {
		return msg
	}
	return string(r[:maxLineLen-3]) + "..."
}

func sanitizeMessage(msg string) string {
	msg = strings.ReplaceAll(msg, "\x00", "")
	return strings.TrimSpace(string(bytes.ToValidUTF8([]byte(msg), []byte("?"))))
}
