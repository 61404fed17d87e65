package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
)

// maxLineBytes bounds the response line read from the tool.
const maxLineBytes = 4 * 1024 * 1024

// EncodeRequest writes req to w as one JSON line.
func EncodeRequest(w io.Writer, req *Request) error {
	if req == nil {
		return fmt.Errorf("request is nil")
	}
	if req.FrameworkVersion == "" {
		return fmt.Errorf("request missing required field: frameworkVersion")
	}
	if req.ConfigURL == "" && req.ScenarioName == "" {
		return fmt.Errorf("request needs configUrl or scenarioName")
	}
	if req.ScenarioArgs == nil {
		r := *req
		r.ScenarioArgs = map[string]any{}
		req = &r
	}

	encoder := json.NewEncoder(w)
	if err := encoder.Encode(req); err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return nil
}

// DecodeResponse reads the first line of r and decodes it. Module fields
// other than dataTier and filterName are ignored. The raw line is returned
// alongside any error for diagnostics.
func DecodeResponse(r io.Reader) (Response, []byte, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	line, err := readLine(reader)
	if err != nil {
		return nil, line, err
	}
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, line, fmt.Errorf("discovery tool produced no output on stdout")
	}

	var resp Response
	decoder := json.NewDecoder(bytes.NewReader(line))
	if err := decoder.Decode(&resp); err != nil {
		return nil, line, fmt.Errorf("discovery output is not valid JSON: %w", err)
	}
	if decoder.More() {
		return nil, line, fmt.Errorf("discovery output has trailing data after the JSON object")
	}
	if resp == nil {
		return nil, line, fmt.Errorf("discovery output is null")
	}

	for _, name := range slices.Sorted(maps.Keys(resp)) {
		if name == "" {
			return nil, line, fmt.Errorf("discovery output has an unnamed output module")
		}
		if resp[name].DataTier == "" {
			return nil, line, fmt.Errorf("output module %q missing required field: dataTier", name)
		}
	}
	return resp, line, nil
}

// Names returns the output module names in sorted order.
func (r Response) Names() []string {
	return slices.Sorted(maps.Keys(r))
}

func readLine(r *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > maxLineBytes {
			return line[:maxLineBytes], fmt.Errorf("discovery output line exceeds %d bytes", maxLineBytes)
		}
		switch {
		case err == nil, errors.Is(err, io.EOF):
			return line, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return line, fmt.Errorf("failed to read discovery output: %w", err)
		}
	}
}
