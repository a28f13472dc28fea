package client

import (
	"bufio"
	"io"
	"strings"
)

// Frame is one server-sent event
type Frame struct {
	Event string
	ID    string
	Data  string
}

// FrameReader splits a text/event-stream body into frames. Multi-line data is joined
// with "\n"; comments and unknown fields are ignored.
type FrameReader struct {
	r *bufio.Reader
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r)}
}

// Next returns the next complete frame, or io.EOF when the stream ends between frames.
// A frame cut off by the end of the stream yields io.ErrUnexpectedEOF.
func (fr *FrameReader) Next() (Frame, error) {
	var (
		f       Frame
		data    []string
		started bool
	)
	for {
		line, err := fr.r.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				if started || line != "" {
					return Frame{}, io.ErrUnexpectedEOF
				}
				return Frame{}, io.EOF
			}
			return Frame{}, err
		}
		line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")

		if line == "" {
			if !started {
				continue
			}
			f.Data = strings.Join(data, "\n")
			if f.Event == "" {
				f.Event = "message"
			}
			return f, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			f.Event = value
			started = true
		case "id":
			f.ID = value
			started = true
		case "data":
			data = append(data, value)
			started = true
		}
	}
}
